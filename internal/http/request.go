package http

// Utilities for reading JSON bodies, path ids and query parameters. Every
// parser reports problems as errors that writeError understands.

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finanzen/internal/core"
	"finanzen/internal/services"
	"finanzen/internal/storage"
)

// maxJSONBytes caps JSON request bodies.
const maxJSONBytes = 1 << 20

// decodeJSON reads a single JSON value from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(body)

	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &mbe):
			return err
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.As(err, &syntaxErr):
			return badRequest("malformed JSON at offset %d", syntaxErr.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return badRequest("malformed JSON")
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return core.FieldError(typeErr.Field, "has the wrong type")
		default:
			// Custom unmarshalers (dates, amounts) report their own errors.
			return badRequest("invalid request body: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON value")
	}
	return nil
}

// pathID returns the {id} path value. Ids that are not UUIDs cannot exist.
func pathID(r *http.Request) (string, error) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", core.ErrNotFound
	}
	return id, nil
}

// queryParser collects per-parameter problems into one validation error.
type queryParser struct {
	q    url.Values
	errs *core.ValidationError
}

func newQueryParser(q url.Values) *queryParser {
	return &queryParser{q: q, errs: core.NewValidationError()}
}

func (p *queryParser) str(key string) string {
	return strings.TrimSpace(p.q.Get(key))
}

func (p *queryParser) int(key string, def int) int {
	v := p.str(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		p.errs.Add(key, "must be a non-negative integer")
		return def
	}
	return n
}

func (p *queryParser) bool(key string) bool {
	v := p.str(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs.Add(key, "must be true or false")
	}
	return b
}

func (p *queryParser) date(key string) *core.Date {
	v := p.str(key)
	if v == "" {
		return nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		p.errs.Add(key, "must be a date (YYYY-MM-DD or DD.MM.YYYY)")
		return nil
	}
	return &d
}

func (p *queryParser) decimal(key string) *decimal.Decimal {
	v := p.str(key)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", "."))
	if err != nil {
		p.errs.Add(key, "must be a number")
		return nil
	}
	return &d
}

func (p *queryParser) uuid(key string) string {
	v := p.str(key)
	if v == "" {
		return ""
	}
	if _, err := uuid.Parse(v); err != nil {
		p.errs.Add(key, "must be a UUID")
		return ""
	}
	return v
}

func (p *queryParser) oneOf(key string, allowed ...string) string {
	v := strings.ToLower(p.str(key))
	if v == "" {
		return ""
	}
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	p.errs.Add(key, "must be one of "+strings.Join(allowed, ", "))
	return ""
}

func (p *queryParser) err() error { return p.errs.OrNil() }

// parseTransactionFilter reads the list filters of GET /api/transactions.
// categoryId=none selects uncategorized bookings.
func parseTransactionFilter(q url.Values) (storage.TransactionFilter, error) {
	p := newQueryParser(q)
	f := storage.TransactionFilter{
		AccountID: p.uuid("accountId"),
		Type:      core.TransactionType(p.oneOf("type", string(core.Income), string(core.Expense), string(core.Transfer))),
		From:      p.date("from"),
		To:        p.date("to"),
		Search:    p.str("search"),
		MinAmount: p.decimal("minAmount"),
		MaxAmount: p.decimal("maxAmount"),
		Page:      p.int("page", 1),
		PageSize:  p.int("pageSize", storage.DefaultPageSize),
		SortBy:    p.oneOf("sortBy", "date", "amount", "description"),
		SortAsc:   p.oneOf("sortOrder", "asc", "desc") == "asc",
	}
	if strings.EqualFold(p.str("categoryId"), "none") {
		f.Uncategorized = true
	} else {
		f.CategoryID = p.uuid("categoryId")
	}
	if p.bool("uncategorized") {
		f.Uncategorized = true
	}
	if len([]rune(f.Search)) > 200 {
		p.errs.Add("search", "must be at most 200 characters")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		p.errs.Add("to", "must not be before from")
	}
	if f.MinAmount != nil && f.MaxAmount != nil && f.MaxAmount.LessThan(*f.MinAmount) {
		p.errs.Add("maxAmount", "must not be less than minAmount")
	}
	if err := p.err(); err != nil {
		return storage.TransactionFilter{}, err
	}
	f.Normalize()
	return f, nil
}

// parseSummaryRequest reads the parameters of GET /api/transactions/summary.
func parseSummaryRequest(q url.Values) (services.SummaryRequest, error) {
	p := newQueryParser(q)
	req := services.SummaryRequest{
		From:      p.date("from"),
		To:        p.date("to"),
		AccountID: p.uuid("accountId"),
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		p.errs.Add("to", "must not be before from")
	}
	return req, p.err()
}
