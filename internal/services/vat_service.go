package services

import (
	"context"

	"finanzen/internal/core"
	"finanzen/internal/log"
	"finanzen/internal/validation"
)

// VatService converts between net and gross amounts with German VAT rates.
type VatService struct {
	logger *log.Logger
}

// NewVatService creates the VAT calculator.
func NewVatService(logger *log.Logger) *VatService {
	return &VatService{logger: logger.WithComponent(log.ComponentVat)}
}

// Calculate splits or grosses up an amount. An explicit rate wins over the
// rate kind; without either the standard rate applies.
func (s *VatService) Calculate(ctx context.Context, req VatCalculateRequest) (VatCalculation, error) {
	if err := validation.Struct(req); err != nil {
		return VatCalculation{}, err
	}
	currency, err := core.NormalizeCurrency(req.Currency)
	if err != nil {
		return VatCalculation{}, core.FieldError("currency", err.Error())
	}
	amount, err := core.NewMoney(req.Amount, currency)
	if err != nil {
		return VatCalculation{}, core.FieldError("amount", err.Error())
	}
	if amount.IsNegative() {
		return VatCalculation{}, core.FieldError("amount", "must not be negative")
	}

	rate := core.VatStandard
	switch r, err := optionalVatRate(req.Rate); {
	case err != nil:
		return VatCalculation{}, core.FieldError("rate", err.Error())
	case r != nil:
		rate = *r
	case req.RateKind != "":
		k, ok := core.RateForKind(req.RateKind)
		if !ok {
			return VatCalculation{}, core.FieldError("rateKind", "is unknown")
		}
		rate = k
	}

	out := VatCalculation{Rate: rate, RateKind: rate.Kind()}
	if req.Mode == "net" {
		out.Net = amount
		out.Vat = rate.VatFromNet(amount)
		out.Gross, _ = amount.Add(out.Vat)
	} else {
		out.Gross = amount
		out.Net, out.Vat = rate.Split(amount)
	}
	s.logger.DebugContext(ctx, "VAT calculated", "mode", req.Mode, "rate", rate.String())
	return out, nil
}

// Rates lists the German VAT classes.
func (s *VatService) Rates() []VatRateInfo {
	return []VatRateInfo{
		{Kind: core.VatKindStandard, Rate: core.VatStandard, Label: "Regelsteuersatz 19 %",
			Description: "Gilt für die meisten Waren und Dienstleistungen."},
		{Kind: core.VatKindReduced, Rate: core.VatReduced, Label: "Ermäßigter Steuersatz 7 %",
			Description: "Lebensmittel, Bücher, Zeitungen, Personennahverkehr und Übernachtungen."},
		{Kind: core.VatKindZero, Rate: core.VatZero, Label: "Steuerfrei 0 %",
			Description: "Steuerbefreite Umsätze, etwa Miete, Versicherungen oder Arztleistungen."},
	}
}
