package api

import (
	"net/http"

	"github.com/go-faster/jx"
)

// Quote responses are encoded by hand with jx; every other endpoint goes
// through encoding/json. The wire shape must stay identical to the
// calculateResponse struct tags.

func (l quoteLineDTO) encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("discountId")
	e.Str(l.DiscountID)
	e.FieldStart("name")
	e.Str(l.Name)
	e.FieldStart("kind")
	e.Str(l.Kind)
	e.FieldStart("type")
	e.Str(l.Type)
	e.FieldStart("amount")
	e.Str(l.Amount.String())
	e.ObjEnd()
}

func (r calculateResponse) encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range r.Lines {
		l.encode(e)
	}
	e.ArrEnd()
	e.FieldStart("totalDiscount")
	e.Str(r.TotalDiscount.String())
	e.FieldStart("finalTotal")
	e.Str(r.FinalTotal.String())
	e.ObjEnd()
}

func writeQuote(w http.ResponseWriter, resp calculateResponse) {
	e := new(jx.Encoder)
	resp.encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = e.WriteTo(w)
}
