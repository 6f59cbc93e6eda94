package destination

import (
	"sort"
	"strings"
	"sync"
)

// Record is the persisted form of one cached destination.
type Record struct {
	Label  string            `toml:"label"`
	Fields map[string]string `toml:"fields"`
}

// Cache keeps one destination per label for the session, so switching the
// selection keeps the values already entered for other backends.
type Cache struct {
	opts Options

	mu       sync.RWMutex
	items    map[string]Destination
	userSet  map[string]map[string]bool
	selected string
}

func NewCache(opts Options) *Cache {
	return &Cache{
		opts:    opts,
		items:   make(map[string]Destination),
		userSet: make(map[string]map[string]bool),
	}
}

// Get returns the destination for label, creating it on first use.
func (c *Cache) Get(label string) (Destination, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(label)
}

func (c *Cache) getLocked(label string) (Destination, error) {
	for l, d := range c.items {
		if strings.EqualFold(l, label) {
			return d, nil
		}
	}
	d, err := New(label, c.opts)
	if err != nil {
		return nil, err
	}
	c.items[d.Label()] = d
	return d, nil
}

// SetField sets a field of the destination for label. The value is kept in
// Records even when it equals the configured default.
func (c *Cache) SetField(label, name, value string) (Destination, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, err := c.getLocked(label)
	if err != nil {
		return nil, err
	}
	if err := d.SetField(name, value); err != nil {
		return nil, err
	}
	c.markLocked(d.Label(), name)
	return d, nil
}

func (c *Cache) markLocked(label, name string) {
	if c.userSet[label] == nil {
		c.userSet[label] = make(map[string]bool)
	}
	c.userSet[label][name] = true
}

// Select makes label the active destination.
func (c *Cache) Select(label string) (Destination, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, err := c.getLocked(label)
	if err != nil {
		return nil, err
	}
	c.selected = d.Label()
	return d, nil
}

// Selected returns the active destination, or nil when none is selected.
func (c *Cache) Selected() Destination {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selected == "" {
		return nil
	}
	return c.items[c.selected]
}

// SelectedLabel returns the label of the active destination.
func (c *Cache) SelectedLabel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// Cached returns the labels created so far, sorted.
func (c *Cache) Cached() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	labels := make([]string, 0, len(c.items))
	for l := range c.items {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Records returns every cached destination with unmasked field values.
// Fields still holding their configured default are left out, so defaults
// never end up in project files and later changes to them apply.
func (c *Cache) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := make([]Record, 0, len(c.items))
	for _, label := range sortedKeys(c.items) {
		var defaults map[string]string
		if base, err := New(label, c.opts); err == nil {
			defaults = FieldMap(base, true)
		}
		fields := make(map[string]string)
		for name, value := range FieldMap(c.items[label], true) {
			if c.userSet[label][name] || value != defaults[name] {
				fields[name] = value
			}
		}
		records = append(records, Record{Label: label, Fields: fields})
	}
	return records
}

// Restore recreates cached destinations from records and selects selected.
// Empty stored values leave configured defaults in place.
func (c *Cache) Restore(records []Record, selected string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range records {
		d, err := c.getLocked(r.Label)
		if err != nil {
			return err
		}
		for name, value := range r.Fields {
			if value == "" {
				continue
			}
			if err := d.SetField(name, value); err != nil {
				return err
			}
			c.markLocked(d.Label(), name)
		}
	}

	if selected == "" {
		c.selected = ""
		return nil
	}
	d, err := c.getLocked(selected)
	if err != nil {
		return err
	}
	c.selected = d.Label()
	return nil
}

func sortedKeys(m map[string]Destination) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
