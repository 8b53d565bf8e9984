package cmd

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/fatih/color"
	"go.dedis.ch/kdht/peer"
	"go.dedis.ch/kdht/types"
	"golang.org/x/xerrors"
)

// A script is a list of commands run one after the other by a node, e.g.:
//
//	# join and store a value
//	bootstrap 127.0.0.1:4001
//	put greeting "hello world"
//	sleep 500
//	get greeting
//	lookup 5a1f...
//	ping 127.0.0.1:4002
//	table

var scriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `\b(bootstrap|ping|put|get|lookup|sleep|table)\b`},
	{Name: "Address", Pattern: `\d+\.\d+\.\d+\.\d+:\d+`},
	{Name: "Int", Pattern: `\d+\b`},
	{Name: "String", Pattern: `"(\\"|[^"])*"`},
	{Name: "Ident", Pattern: `[a-zA-Z0-9_\-\.]+`},
	{Name: "comment", Pattern: `#[^\n]*`},
	{Name: "whitespace", Pattern: `\s+`},
})

// Script is a parsed script.
type Script struct {
	Commands []*Command `@@*`
}

// Command is one line of a script.
type Command struct {
	Bootstrap *string     `  "bootstrap" @Address`
	Ping      *string     `| "ping" @Address`
	Put       *PutCommand `| "put" @@`
	Get       *string     `| "get" @(Ident | String | Int)`
	Lookup    *string     `| "lookup" @(Ident | String | Int)`
	Sleep     *int        `| "sleep" @Int`
	Table     bool        `| @"table"`
}

// PutCommand stores Value under the key named Key.
type PutCommand struct {
	Key   string `@(Ident | String | Int)`
	Value string `@(Ident | String | Int)`
}

var scriptParser = participle.MustBuild[Script](
	participle.Lexer(scriptLexer),
	participle.Unquote("String"),
)

// ParseScript parses the text of a script.
func ParseScript(text string) (*Script, error) {
	script, err := scriptParser.ParseString("", text)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse script: %v", err)
	}
	return script, nil
}

// ScriptInterface runs the script in file on a new node bound on addr.
func ScriptInterface(file, addr string) {
	text, err := os.ReadFile(file)
	exitOnErr(err, "failed to read script")

	script, err := ParseScript(string(text))
	exitOnErr(err, "invalid script")

	config := nodeDefaultConf(udpFac(), addr)
	node := nodeCreateWithConf(peerFac, config)

	exitOnErr(node.Start(), "failed to start node")
	defer func() {
		exitOnErr(node.Stop(), "failed to stop node")
	}()

	banner(node)

	for i, c := range script.Commands {
		err = c.run(node)
		if err != nil {
			color.Red("%d: %s: %v\n", i+1, c, err)
		}
	}
}

// String returns the command as it would be written in a script.
func (c *Command) String() string {
	switch {
	case c.Bootstrap != nil:
		return "bootstrap " + *c.Bootstrap
	case c.Ping != nil:
		return "ping " + *c.Ping
	case c.Put != nil:
		return "put " + c.Put.Key + " " + c.Put.Value
	case c.Get != nil:
		return "get " + *c.Get
	case c.Lookup != nil:
		return "lookup " + *c.Lookup
	case c.Sleep != nil:
		return "sleep " + strconv.Itoa(*c.Sleep)
	case c.Table:
		return "table"
	default:
		return "?"
	}
}

func (c *Command) run(node peer.Peer) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch {
	case c.Bootstrap != nil:
		return node.Bootstrap(*c.Bootstrap)

	case c.Ping != nil:
		res, err := node.Ping(*c.Ping).Get(ctx)
		if err != nil {
			return err
		}
		color.Yellow("%s answered in %s\n", res.Contact, res.RTT)

	case c.Put != nil:
		value := types.Value{Content: []byte(c.Put.Value)}
		res, err := node.Put(parseKey(c.Put.Key), value, peer.PutConfig{}).Get(ctx)
		color.Yellow("%s\n", putTree(res))
		return err

	case c.Get != nil:
		res, err := node.Get(parseKey(*c.Get)).Get(ctx)
		if err != nil {
			return err
		}
		color.Yellow("%s := %q from %s\n", *c.Get, res.Value.Value.Content, res.Source)

	case c.Lookup != nil:
		res, err := node.Lookup(parseKey(*c.Lookup)).Get(ctx)
		if err != nil {
			return err
		}
		color.Yellow("%s\n", lookupTree(res))

	case c.Sleep != nil:
		time.Sleep(time.Duration(*c.Sleep) * time.Millisecond)

	case c.Table:
		return showTable(node)
	}

	return nil
}

// Keys returns the keys a script refers to, in order.
func (s *Script) Keys() []string {
	keys := []string{}
	for _, c := range s.Commands {
		switch {
		case c.Put != nil:
			keys = append(keys, c.Put.Key)
		case c.Get != nil:
			keys = append(keys, *c.Get)
		case c.Lookup != nil:
			keys = append(keys, *c.Lookup)
		}
	}
	return keys
}
