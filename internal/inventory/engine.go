package inventory

import (
	"context"
	"sort"

	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Engine validates a whole order against current stock and commits the
// decrements only when every line fits. It must run inside a transaction:
// products are row-locked as they are read so concurrent orders serialize on
// the rows they share.
type Engine struct {
	log logrus.FieldLogger
}

func NewEngine(log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{log: log}
}

// Reserve runs in three steps:
//  1. lock every distinct product, in ascending id order (no lock cycles
//     between orders that touch the same products in a different order);
//  2. validate lines in request order against cumulative demand per product;
//  3. write the new stock values.
//
// Nothing is written unless step 2 passes for every line, and the caller's
// transaction rolls back anything else on error.
func (e *Engine) Reserve(ctx context.Context, products orders.ProductStore, lines []orders.LineRequest) ([]orders.Reservation, error) {
	if err := orders.ValidateLines(lines); err != nil {
		return nil, err
	}

	locked, err := lockAll(ctx, products, lines)
	if err != nil {
		return nil, err
	}

	claimed := make(map[string]int, len(locked))
	out := make([]orders.Reservation, 0, len(lines))
	for _, l := range lines {
		p, ok := locked[l.ProductID]
		if !ok {
			return nil, &orders.ProductNotFoundError{ProductID: l.ProductID}
		}
		available := p.Stock - claimed[l.ProductID]
		if l.Quantity > available {
			e.log.WithFields(logrus.Fields{
				"product_id": p.ID,
				"requested":  l.Quantity,
				"available":  available,
			}).Info("reservation rejected")
			return nil, &orders.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   l.Quantity,
				Available:   available,
			}
		}
		claimed[l.ProductID] += l.Quantity
		out = append(out, orders.Reservation{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.UnitPrice,
			Quantity:    l.Quantity,
		})
	}

	for _, id := range sortedKeys(claimed) {
		p := locked[id]
		p.Stock -= claimed[id]
		if _, err := products.Save(ctx, p); err != nil {
			return nil, errors.Wrapf(err, "save stock for product %s", id)
		}
	}
	return out, nil
}

// lockAll returns the locked products keyed by id. Missing ids are simply
// absent so validation can report them in request order.
func lockAll(ctx context.Context, products orders.ProductStore, lines []orders.LineRequest) (map[string]orders.Product, error) {
	ids := make(map[string]int, len(lines))
	for _, l := range lines {
		ids[l.ProductID] = 0
	}
	locked := make(map[string]orders.Product, len(ids))
	for _, id := range sortedKeys(ids) {
		p, err := products.FindByIDForUpdate(ctx, id)
		if errors.Is(err, orders.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "lock product %s", id)
		}
		locked[id] = p
	}
	return locked, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
