package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"reconstudy/internal/models"
)

const (
	invoicePrefix  = "invoice_"
	modifiedPrefix = "modified_invoice_"
	purchasePrefix = "purchase_orders_"
	pdfSuffix      = ".pdf"
)

// DefaultModifiedRatio is the study weighting toward error-injected invoices.
const DefaultModifiedRatio = 2.0 / 3.0

// ErrNoPairs signals that the chosen pool holds no unused document pair.
// Terminal for the session; callers must not retry selection.
var ErrNoPairs = errors.New("no unused document pairs remain")

// Library enumerates and selects invoice/purchase-order pairs from the three
// dataset directories.
type Library struct {
	invoiceDir  string
	purchaseDir string
	modifiedDir string
	ratio       float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLibrary builds a Library. A nil rng falls back to a time-seeded source;
// tests inject a fixed seed. A ratio <= 0 uses the default 2/3 weighting.
func NewLibrary(invoiceDir, purchaseDir, modifiedDir string, ratio float64, rng *rand.Rand) *Library {
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultModifiedRatio
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Library{
		invoiceDir:  invoiceDir,
		purchaseDir: purchaseDir,
		modifiedDir: modifiedDir,
		ratio:       ratio,
		rng:         rng,
	}
}

// SelectPair picks a random unused pair, drawing from the modified pool with
// the configured probability. The caller owns adding the returned ID to the
// used set.
func (l *Library) SelectPair(used map[string]struct{}) (models.DocumentPair, error) {
	purchaseIDs, err := listIDs(l.purchaseDir, purchasePrefix)
	if err != nil {
		return models.DocumentPair{}, fmt.Errorf("scan purchase orders: %w", err)
	}

	l.mu.Lock()
	useModified := l.rng.Float64() < l.ratio
	l.mu.Unlock()

	dir, prefix := l.invoiceDir, invoicePrefix
	if useModified {
		dir, prefix = l.modifiedDir, modifiedPrefix
	}
	invoiceIDs, err := listIDs(dir, prefix)
	if err != nil {
		return models.DocumentPair{}, fmt.Errorf("scan invoices: %w", err)
	}

	var available []string
	for id := range invoiceIDs {
		if _, ok := purchaseIDs[id]; !ok {
			continue
		}
		if _, ok := used[id]; ok {
			continue
		}
		available = append(available, id)
	}
	if len(available) == 0 {
		return models.DocumentPair{}, ErrNoPairs
	}
	sort.Strings(available)

	l.mu.Lock()
	chosen := available[l.rng.Intn(len(available))]
	l.mu.Unlock()

	return models.NewDocumentPair(chosen, useModified), nil
}

// InvoicePath resolves the on-disk location of the pair's invoice.
func (l *Library) InvoicePath(pair models.DocumentPair) string {
	if pair.Modified {
		return filepath.Join(l.modifiedDir, pair.InvoiceFile)
	}
	return filepath.Join(l.invoiceDir, pair.InvoiceFile)
}

// PurchasePath resolves the on-disk location of the pair's purchase order.
func (l *Library) PurchasePath(pair models.DocumentPair) string {
	return filepath.Join(l.purchaseDir, pair.PurchaseFile)
}

func listIDs(dir, prefix string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, pdfSuffix) {
			continue
		}
		// modified_invoice_ also matches the invoice_ prefix check when
		// scanning the original pool, so require an exact layout.
		if prefix == invoicePrefix && strings.HasPrefix(name, modifiedPrefix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, prefix), pdfSuffix)
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}
