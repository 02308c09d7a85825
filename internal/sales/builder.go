package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"sorbo/backend/internal/domain"
)

type State string

const (
	StateEmpty     State = "empty"
	StateEditing   State = "editing"
	StateValidated State = "validated"
	StateCommitted State = "committed"
)

var (
	ErrNotValidated     = errors.New("sale has not been validated")
	ErrAlreadyCommitted = errors.New("sale already committed")
)

// Builder tracks a sale being entered, or an edit of a committed sale,
// through Empty -> Editing -> Validated -> Committed. Any change moves it
// back to Editing; removing the last line moves it back to Empty.
type Builder struct {
	lines       []domain.SaleLine
	esMayorista bool
	original    *domain.Sale
	state       State
	errors      map[int]string
}

func NewBuilder(esMayorista bool) *Builder {
	return &Builder{esMayorista: esMayorista, state: StateEmpty}
}

// NewEditBuilder starts from the lines of a committed sale.
func NewEditBuilder(original domain.Sale) *Builder {
	b := &Builder{esMayorista: original.EsMayorista, original: &original, state: StateEmpty}
	for _, item := range original.Items {
		b.lines = append(b.lines, domain.SaleLine{ProductID: item.ProductID, Quantity: item.Cantidad})
	}
	if len(b.lines) > 0 {
		b.state = StateEditing
	}
	return b
}

func (b *Builder) State() State { return b.state }

func (b *Builder) Lines() []domain.SaleLine {
	out := make([]domain.SaleLine, len(b.lines))
	copy(out, b.lines)
	return out
}

func (b *Builder) EsMayorista() bool { return b.esMayorista }

func (b *Builder) Original() *domain.Sale { return b.original }

func (b *Builder) Errors() map[int]string { return b.errors }

func (b *Builder) touch() {
	b.errors = nil
	if len(b.lines) == 0 {
		b.state = StateEmpty
		return
	}
	b.state = StateEditing
}

func (b *Builder) AddLine(productID string, qty int) int {
	if b.state == StateCommitted {
		return -1
	}
	b.lines = append(b.lines, domain.SaleLine{ProductID: productID, Quantity: qty})
	b.touch()
	return len(b.lines) - 1
}

// SetLines replaces every line at once.
func (b *Builder) SetLines(lines []domain.SaleLine) {
	if b.state == StateCommitted {
		return
	}
	b.lines = append(b.lines[:0:0], lines...)
	b.touch()
}

// SetProduct selects a product for line i and resets its quantity to 1.
func (b *Builder) SetProduct(i int, productID string) {
	if b.state == StateCommitted || i < 0 || i >= len(b.lines) {
		return
	}
	b.lines[i] = domain.SaleLine{ProductID: productID, Quantity: 1}
	b.touch()
}

func (b *Builder) SetQuantity(i int, qty int) {
	if b.state == StateCommitted || i < 0 || i >= len(b.lines) {
		return
	}
	b.lines[i].Quantity = qty
	b.touch()
}

func (b *Builder) RemoveLine(i int) {
	if b.state == StateCommitted || i < 0 || i >= len(b.lines) {
		return
	}
	b.lines = append(b.lines[:i], b.lines[i+1:]...)
	b.touch()
}

func (b *Builder) SetWholesale(esMayorista bool) {
	if b.state == StateCommitted || b.esMayorista == esMayorista {
		return
	}
	b.esMayorista = esMayorista
	b.touch()
}

// Validate checks every line against products and moves the builder to
// Validated when there are no errors.
func (b *Builder) Validate(products map[string]domain.Product) map[int]string {
	if b.state == StateCommitted {
		return nil
	}
	if len(b.lines) == 0 {
		b.state = StateEmpty
		b.errors = map[int]string{0: MsgProductRequired}
		return b.errors
	}
	b.errors = ComputeItemErrors(b.lines, products, b.original)
	if len(b.errors) == 0 {
		b.state = StateValidated
	} else {
		b.state = StateEditing
	}
	return b.errors
}

func (b *Builder) Total(products map[string]domain.Product) decimal.Decimal {
	return ComputeTotal(b.lines, products, b.esMayorista)
}

// MaxStock returns the allowed maximum for every line, in line order.
func (b *Builder) MaxStock(products map[string]domain.Product) []int {
	out := make([]int, len(b.lines))
	for i, line := range b.lines {
		out[i] = MaxStockForItem(line.ProductID, products, b.original)
	}
	return out
}

// Items freezes the sale items. Only valid after a successful Validate.
func (b *Builder) Items(products map[string]domain.Product) ([]domain.SaleItem, error) {
	switch b.state {
	case StateCommitted:
		return nil, ErrAlreadyCommitted
	case StateValidated:
	default:
		return nil, ErrNotValidated
	}
	if b.original != nil {
		return RebuildSaleItems(b.lines, products, *b.original, b.esMayorista), nil
	}
	return BuildSaleItems(b.lines, products, b.esMayorista), nil
}

// Deltas returns the stock mutations committing items implies.
func (b *Builder) Deltas(items []domain.SaleItem) []domain.StockDelta {
	if b.original != nil {
		return EditDeltas(b.original.Items, items)
	}
	return CreationDeltas(items)
}

func (b *Builder) MarkCommitted() error {
	if b.state != StateValidated {
		return ErrNotValidated
	}
	b.state = StateCommitted
	return nil
}

// Draft captures the valid lines (resolved product, positive quantity) as a
// recoverable draft. An edit keeps the id of the sale it changes and the
// prices that sale froze. ok is false when no line is valid.
func (b *Builder) Draft(id string, at time.Time, products map[string]domain.Product) (domain.Draft, bool) {
	if b.original == nil {
		return BuildDraft(id, at, b.lines, products, b.esMayorista)
	}
	valid := ValidLines(b.lines, products)
	if len(valid) == 0 {
		return domain.Draft{}, false
	}
	draft := draftFromItems(id, at, RebuildSaleItems(valid, products, *b.original, b.esMayorista), b.esMayorista)
	draft.SaleID = b.original.ID
	return draft, true
}

// BuildDraft is the stateless form of Builder.Draft for a new sale.
func BuildDraft(id string, at time.Time, lines []domain.SaleLine, products map[string]domain.Product, esMayorista bool) (domain.Draft, bool) {
	valid := ValidLines(lines, products)
	if len(valid) == 0 {
		return domain.Draft{}, false
	}
	return draftFromItems(id, at, BuildSaleItems(valid, products, esMayorista), esMayorista), true
}

func draftFromItems(id string, at time.Time, items []domain.SaleItem, esMayorista bool) domain.Draft {
	out := make([]domain.DraftItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.DraftItem{
			ProductID:      item.ProductID,
			ProductNombre:  item.ProductNombre,
			Quantity:       item.Cantidad,
			PrecioUnitario: item.PrecioUnitario,
		})
	}
	return domain.Draft{
		ID:    id,
		Fecha: at,
		SaleData: domain.DraftSaleData{
			Items:       out,
			EsMayorista: esMayorista,
			Total:       Total(items),
		},
	}
}

// ValidLines keeps the lines with a resolved product and a positive quantity.
func ValidLines(lines []domain.SaleLine, products map[string]domain.Product) []domain.SaleLine {
	out := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		if _, ok := products[line.ProductID]; !ok {
			continue
		}
		out = append(out, line)
	}
	return out
}

// LinesFromDraft turns a saved draft back into sale lines.
func LinesFromDraft(draft domain.Draft) []domain.SaleLine {
	lines := make([]domain.SaleLine, 0, len(draft.SaleData.Items))
	for _, item := range draft.SaleData.Items {
		lines = append(lines, domain.SaleLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}
