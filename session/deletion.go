package session

// DeletionSet 被用户移除的条目，和缓存里是否还有数据无关
type DeletionSet struct {
	ids map[string]struct{}
}

func newDeletionSet() *DeletionSet {
	return &DeletionSet{ids: make(map[string]struct{})}
}

func (d *DeletionSet) Add(id string) {
	d.ids[id] = struct{}{}
}

func (d *DeletionSet) Has(id string) bool {
	_, ok := d.ids[id]
	return ok
}

func (d *DeletionSet) Clear() int {
	n := len(d.ids)
	d.ids = make(map[string]struct{})
	return n
}

func (d *DeletionSet) Len() int {
	return len(d.ids)
}
