package render

import (
	"encoding/json"
	"errors"
	"fmt"

	"seald/internal/domain"
)

// Renderer produces the canonical invoice document for a shipment. The
// output is a function of its inputs alone: no clock, no randomness. The
// same shipment and line items always render to identical bytes, which is
// what lets an anchored digest be recomputed and compared later.
type Renderer struct {
	CompanyName string
	Division    string
	Address     string
	Contact     string
}

func NewRenderer() *Renderer {
	return &Renderer{
		CompanyName: "EASTERN PRODUCE",
		Division:    "KENYA LOGISTICS DIVISION",
		Address:     "P.O. Box 45678, Nairobi, Kenya",
		Contact:     "+254 700 123 456 | export@easternproduce.co.ke",
	}
}

type invoiceDocument struct {
	Document      string        `json:"document"`
	Status        string        `json:"status"`
	InvoiceNumber string        `json:"invoice_number"`
	Issuer        invoiceParty  `json:"issuer"`
	BillTo        invoiceParty  `json:"bill_to"`
	ShipFrom      invoiceParty  `json:"ship_from"`
	LineItems     []invoiceLine `json:"line_items"`
	Totals        invoiceTotals `json:"totals"`
	Terms         string        `json:"terms"`
}

type invoiceParty struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Contact string `json:"contact,omitempty"`
}

type invoiceLine struct {
	Grade     string `json:"grade"`
	Qty       int    `json:"qty"`
	WeightKg  string `json:"weight_kg"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type invoiceTotals struct {
	Qty        int    `json:"qty"`
	WeightKg   string `json:"weight_kg"`
	Subtotal   string `json:"subtotal"`
	Tax        string `json:"tax"`
	GrandTotal string `json:"grand_total"`
}

// Render produces the invoice bytes for a shipment. final selects the
// OFFICIAL rendering; drafts carry a DRAFT marker so the two renderings
// never share a digest.
func (r *Renderer) Render(shipment domain.Shipment, items []domain.LineItem, final bool) ([]byte, error) {
	if len(items) == 0 {
		return nil, errors.New("line items are required")
	}

	status := "DRAFT"
	if final {
		status = "OFFICIAL"
	}

	doc := invoiceDocument{
		Document:      "export-invoice",
		Status:        status,
		InvoiceNumber: shipment.TrackingNumber,
		Issuer: invoiceParty{
			Name:    r.CompanyName + " / " + r.Division,
			Address: r.Address,
			Contact: r.Contact,
		},
		BillTo:   invoiceParty{Name: shipment.ReceiverName, Address: shipment.Destination},
		ShipFrom: invoiceParty{Name: shipment.SenderName, Address: shipment.Origin},
		Terms:    "Net 30 Days. Tax 0% (export).",
	}

	var totalQty int
	var totalWeight, subtotal float64
	for _, item := range items {
		lineTotal := float64(item.Qty) * item.UnitPrice
		doc.LineItems = append(doc.LineItems, invoiceLine{
			Grade:     item.Grade,
			Qty:       item.Qty,
			WeightKg:  money(item.WeightKg),
			UnitPrice: money(item.UnitPrice),
			LineTotal: money(lineTotal),
		})
		totalQty += item.Qty
		totalWeight += item.WeightKg
		subtotal += lineTotal
	}
	doc.Totals = invoiceTotals{
		Qty:        totalQty,
		WeightKg:   money(totalWeight),
		Subtotal:   money(subtotal),
		Tax:        money(0),
		GrandTotal: money(subtotal),
	}

	return json.Marshal(doc)
}

// money formats amounts with two fixed decimals so the rendering does not
// depend on float shortest-representation quirks.
func money(value float64) string {
	return fmt.Sprintf("%.2f", value)
}
