package feed

// Reconciliation splits freshly parsed items by what storage already holds.
type Reconciliation struct {
	ToInsert  []Item
	ToUpdate  []Item
	Unchanged []Item
}

func (r Reconciliation) Changed() int {
	return len(r.ToInsert) + len(r.ToUpdate)
}

// Reconcile compares items against the stored snapshots of feedID, keyed
// by link. New links are inserted, links whose tracked fields changed are
// updated under their stored ID, and the rest are unchanged.
// A link repeated within items is handled once, first occurrence wins.
// The input order is preserved in every output slice.
func Reconcile(feedID string, items []Item, existing map[string]ItemSnapshot) Reconciliation {
	var result Reconciliation
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		if _, dup := seen[item.Link]; dup {
			continue
		}
		seen[item.Link] = struct{}{}

		item.FeedID = feedID
		stored, ok := existing[item.Link]
		switch {
		case !ok:
			item.ID = ""
			result.ToInsert = append(result.ToInsert, item)
		case stored.Fingerprint != item.Fingerprint():
			item.ID = stored.ID
			result.ToUpdate = append(result.ToUpdate, item)
		default:
			item.ID = stored.ID
			result.Unchanged = append(result.Unchanged, item)
		}
	}

	return result
}
