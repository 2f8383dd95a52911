package conversation

import (
	"slices"
	"sort"

	goCache "github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	"invoicechat/pkg/models"
)

// Store keeps invoices produced during this process, keyed by invoice id.
// Writes are last-write-wins. Entries never expire.
type Store struct {
	cache *goCache.Cache
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{cache: goCache.New(goCache.NoExpiration, 0)}
}

// Put stores a snapshot of rec under rec.ID. Records without an id are ignored.
func (s *Store) Put(rec *models.InvoiceRecord) bool {
	if rec == nil || rec.ID == "" {
		return false
	}
	s.cache.Set(rec.ID, Snapshot(rec), goCache.NoExpiration)
	return true
}

// Get returns a snapshot of the stored invoice.
func (s *Store) Get(id string) (*models.InvoiceRecord, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	return Snapshot(v.(*models.InvoiceRecord)), true
}

// Len returns the number of stored invoices.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// List returns snapshots of all invoices, oldest first.
func (s *Store) List() []*models.InvoiceRecord {
	items := s.cache.Items()
	out := lo.MapToSlice(items, func(_ string, it goCache.Item) *models.InvoiceRecord {
		return Snapshot(it.Object.(*models.InvoiceRecord))
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Snapshot copies rec so later edits to either copy never reach the other.
// Decimal and time values are immutable and safe to share.
func Snapshot(rec *models.InvoiceRecord) *models.InvoiceRecord {
	if rec == nil {
		return nil
	}
	cp := *rec
	cp.Products = slices.Clone(rec.Products)
	return &cp
}
