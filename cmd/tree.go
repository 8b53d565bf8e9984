package cmd

import (
	"fmt"

	"github.com/disiqueira/gotree"
	"go.dedis.ch/kdht/peer/impl/routing"
	"go.dedis.ch/kdht/types"
)

func lookupTree(res types.LookupResult) string {
	root := gotree.New(fmt.Sprintf("Lookup %s", res.Key.Short()))
	addLookup(root, res)
	return root.Print()
}

func addLookup(root gotree.Tree, res types.LookupResult) {
	node := root.Add(fmt.Sprintf("%d contacts, %d hops, %d queried, %s",
		len(res.Contacts), res.Hops, res.Queried, res.Elapsed))

	for i, c := range res.Contacts {
		node.Add(fmt.Sprintf("%d: %s", i, c))
	}
}

// putTree shows the lookup and the outcome of every STORE of a put.
func putTree(res types.PutResult) string {
	root := gotree.New(fmt.Sprintf("Put %s", res.Key.Short()))

	if res.Lookup != nil {
		addLookup(root.Add("Lookup"), *res.Lookup)
	}

	if res.Store != nil {
		store := root.Add(fmt.Sprintf("Store: %d/%d stored, %s",
			res.Store.Count(types.StoreStored), len(res.Store.Outcomes), res.Store.Elapsed))

		for _, o := range res.Store.Outcomes {
			line := fmt.Sprintf("%s [%s]", o.Contact, o.State)
			if o.Err != nil {
				line += " " + o.Err.Error()
			}
			store.Add(line)
		}
	}

	return root.Print()
}

func tableTree(self types.Contact, contacts []types.Contact, values []types.ValueTuple) string {
	root := gotree.New(fmt.Sprintf("Node %s", self))

	routing.SortByDistance(contacts, self.ID)
	table := root.Add(fmt.Sprintf("Routing table (%d)", len(contacts)))

	buckets := map[int]gotree.Tree{}
	for _, c := range contacts {
		i := self.ID.CommonPrefixLen(c.ID)
		bucket, ok := buckets[i]
		if !ok {
			bucket = table.Add(fmt.Sprintf("bucket %d", i))
			buckets[i] = bucket
		}
		bucket.Add(c.String())
	}

	local := root.Add(fmt.Sprintf("Values (%d)", len(values)))
	for _, v := range values {
		local.Add(v.String())
	}

	return root.Print()
}
