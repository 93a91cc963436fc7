package store

import (
	"bytes"

	"github.com/google/btree"
	"github.com/iov-one/quorum/errors"
)

// collectItems returns all btree items within [start, end) in ascending
// order. A nil start or end means the range is unbounded on that side.
func collectItems(bt *btree.BTree, start, end []byte) []keyer {
	var items []keyer
	insert := func(item btree.Item) bool {
		items = append(items, item.(keyer))
		return true
	}
	if start == nil && end == nil {
		bt.Ascend(insert)
	} else if start == nil { // end != nil
		bt.AscendLessThan(bkey{end}, insert)
	} else if end == nil { // start != nil
		bt.AscendGreaterOrEqual(bkey{start}, insert)
	} else { // both != nil
		bt.AscendRange(bkey{start}, bkey{end}, insert)
	}
	return items
}

// itemIter combines our cached items with those of the parent,
// taking into consideration overwrites and deletes...
type itemIter struct {
	items   []keyer
	idx     int
	reverse bool

	// if we are iterating in a cache-wrap (and who isn't),
	// we need to combine this iterator with the parent
	parent     Iterator
	parentKey  []byte
	parentVal  []byte
	parentRead bool
	parentDone bool
}

var _ Iterator = (*itemIter)(nil)

func newItemIter(items []keyer, parent Iterator, reverse bool) *itemIter {
	return &itemIter{
		items:   items,
		parent:  parent,
		reverse: reverse,
	}
}

// Next returns the next key/value pair, preferring our own data over the
// parent when both hold the same key. Deleted items hide parent values.
func (i *itemIter) Next() (key, value []byte, err error) {
	for {
		if err := i.peekParent(); err != nil {
			return nil, nil, err
		}
		ours := i.idx < len(i.items)
		if !ours && i.parentDone {
			return nil, nil, errors.ErrIteratorDone
		}

		if !ours {
			i.parentRead = false
			return i.parentKey, i.parentVal, nil
		}

		item := i.items[i.idx]
		if !i.parentDone {
			cmp := bytes.Compare(item.Key(), i.parentKey)
			if i.reverse {
				cmp = -cmp
			}
			if cmp > 0 {
				// parent key comes first
				i.parentRead = false
				return i.parentKey, i.parentVal, nil
			}
			if cmp == 0 {
				// we overwrite the parent value
				i.parentRead = false
			}
		}

		i.idx++
		switch t := item.(type) {
		case setItem:
			return t.Key(), t.value, nil
		case deletedItem:
			continue
		default:
			return nil, nil, errors.Wrapf(errors.ErrDatabase, "unknown item in btree: %#v", item)
		}
	}
}

// peekParent makes sure the next parent key/value pair is loaded, unless the
// parent is exhausted.
func (i *itemIter) peekParent() error {
	if i.parentRead || i.parentDone {
		return nil
	}
	if i.parent == nil {
		i.parentDone = true
		return nil
	}
	k, v, err := i.parent.Next()
	if errors.ErrIteratorDone.Is(err) {
		i.parentDone = true
		return nil
	}
	if err != nil {
		return err
	}
	i.parentKey, i.parentVal, i.parentRead = k, v, true
	return nil
}

// Release releases the Iterator.
func (i *itemIter) Release() {
	if i.parent != nil {
		i.parent.Release()
	}
	i.items = nil
}
