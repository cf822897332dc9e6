package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"finanzen/internal/auth"
	"finanzen/internal/core"
	"finanzen/internal/filestore"
	"finanzen/internal/log"
	"finanzen/internal/storage"
	"finanzen/internal/validation"
)

const (
	ExportJSON = "json"
	ExportXLSX = "xlsx"

	contentTypeJSON = "application/json"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// DataExport is everything stored about one user.
type DataExport struct {
	ExportedAt   time.Time           `json:"exportedAt"`
	User         core.User           `json:"user"`
	Accounts     []core.Account      `json:"accounts"`
	Categories   []core.Category     `json:"categories"`
	Transactions []core.Transaction  `json:"transactions"`
	Files        []core.UploadedFile `json:"files"`
}

// ExportFile is a rendered export ready for download.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// GDPRService implements the data subject rights of access and erasure.
type GDPRService struct {
	store      *storage.Store
	files      filestore.Store
	hasher     *auth.Hasher
	categories *CategoryService
	logger     *log.Logger
	now        func() time.Time
}

// NewGDPRService creates the service behind data export and erasure.
func NewGDPRService(store *storage.Store, files filestore.Store, hasher *auth.Hasher, categories *CategoryService, logger *log.Logger) *GDPRService {
	return &GDPRService{
		store:      store,
		files:      files,
		hasher:     hasher,
		categories: categories,
		logger:     logger.WithComponent(log.ComponentGDPR),
		now:        time.Now,
	}
}

// Collect loads the user's data. The queries run concurrently.
func (s *GDPRService) Collect(ctx context.Context, userID string) (DataExport, error) {
	out := DataExport{ExportedAt: s.now().UTC()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.User, err = s.store.GetUser(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.Accounts, err = s.store.ListAccounts(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.Categories, err = s.store.ListCategories(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.Transactions, err = s.store.ListAllTransactions(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		out.Files, err = s.store.ListFiles(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return DataExport{}, fmt.Errorf("collect export: %w", err)
	}
	if out.Accounts == nil {
		out.Accounts = []core.Account{}
	}
	if out.Categories == nil {
		out.Categories = []core.Category{}
	}
	if out.Transactions == nil {
		out.Transactions = []core.Transaction{}
	}
	if out.Files == nil {
		out.Files = []core.UploadedFile{}
	}
	return out, nil
}

// Export renders the user's data as JSON or as an Excel workbook.
func (s *GDPRService) Export(ctx context.Context, userID, format string) (ExportFile, error) {
	if format == "" {
		format = ExportJSON
	}
	if format != ExportJSON && format != ExportXLSX {
		return ExportFile{}, core.FieldError("format", "must be json or xlsx")
	}
	data, err := s.Collect(ctx, userID)
	if err != nil {
		return ExportFile{}, err
	}

	name := "finanzen-export-" + data.ExportedAt.Format("2006-01-02") + "." + format
	var out ExportFile
	switch format {
	case ExportXLSX:
		b, err := renderWorkbook(data)
		if err != nil {
			return ExportFile{}, err
		}
		out = ExportFile{Name: name, ContentType: contentTypeXLSX, Data: b}
	default:
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return ExportFile{}, fmt.Errorf("encode export: %w", err)
		}
		out = ExportFile{Name: name, ContentType: contentTypeJSON, Data: b}
	}
	s.logger.InfoContext(ctx, "Data exported",
		log.FieldUserID, userID, log.FieldOperation, log.OpExport, "format", format, log.FieldCount, len(data.Transactions))
	return out, nil
}

// Erase deletes the user's account after confirming the password. Stored
// statements go first; a missing object does not stop the erasure.
func (s *GDPRService) Erase(ctx context.Context, userID string, req EraseRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.CheckPassword(u.PasswordHash, req.Password)
	if err != nil {
		return err
	}
	if !ok {
		return core.FieldError("password", "is incorrect")
	}

	files, err := s.store.ListFiles(ctx, userID)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := s.files.Delete(ctx, f.StoredName); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete stored statement", log.FieldFileID, f.ID, log.FieldError, err)
		}
	}
	if err := s.store.DeleteUserData(ctx, userID); err != nil {
		return err
	}
	s.categories.invalidate(userID)
	s.logger.InfoContext(ctx, "User data erased",
		log.FieldUserID, userID, log.FieldOperation, log.OpErase, "files", len(files))
	return nil
}

type sheetColumn struct {
	title string
	width float64
	style string
}

const (
	styleText  = ""
	styleMoney = "money"
	styleDate  = "date"
	styleRate  = "rate"
)

var numFmts = map[string]string{
	styleMoney: `#,##0.00`,
	styleDate:  `dd.mm.yyyy`,
	styleRate:  `0.0%`,
}

type workbookSheet struct {
	name    string
	columns []sheetColumn
	rows    [][]any
}

func renderWorkbook(d DataExport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheets := exportSheets(d)
	styles, header, err := workbookStyles(f)
	if err != nil {
		return nil, err
	}
	for i, sh := range sheets {
		if i == 0 {
			f.SetSheetName("Sheet1", sh.name)
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return nil, fmt.Errorf("add sheet %s: %w", sh.name, err)
		}
		if err := writeSheet(f, sh, styles, header); err != nil {
			return nil, fmt.Errorf("write sheet %s: %w", sh.name, err)
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func workbookStyles(f *excelize.File) (map[string]int, int, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("header style: %w", err)
	}
	styles := make(map[string]int, len(numFmts))
	for name, nf := range numFmts {
		id, err := f.NewStyle(&excelize.Style{CustomNumFmt: &nf})
		if err != nil {
			return nil, 0, fmt.Errorf("%s style: %w", name, err)
		}
		styles[name] = id
	}
	return styles, header, nil
}

// writeSheet styles the columns before writing so new cells inherit the
// number formats.
func writeSheet(f *excelize.File, sh workbookSheet, styles map[string]int, header int) error {
	titles := make([]any, len(sh.columns))
	for i, c := range sh.columns {
		titles[i] = c.title
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sh.name, col, col, c.width); err != nil {
			return err
		}
		if c.style == styleText {
			continue
		}
		if err := f.SetColStyle(sh.name, col, styles[c.style]); err != nil {
			return err
		}
	}
	if err := f.SetSheetRow(sh.name, "A1", &titles); err != nil {
		return err
	}
	if err := f.SetRowStyle(sh.name, 1, 1, header); err != nil {
		return err
	}
	for i, row := range sh.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func exportSheets(d DataExport) []workbookSheet {
	accountNames := make(map[string]string, len(d.Accounts))
	for _, a := range d.Accounts {
		accountNames[a.ID] = a.Name
	}
	categoryNames := make(map[string]string, len(d.Categories))
	for _, c := range d.Categories {
		categoryNames[c.ID] = c.Name
	}

	profile := workbookSheet{
		name:    "Profil",
		columns: []sheetColumn{{title: "Feld", width: 22}, {title: "Wert", width: 40}},
		rows: [][]any{
			{"E-Mail", d.User.Email},
			{"Vorname", d.User.FirstName},
			{"Nachname", d.User.LastName},
			{"Rolle", string(d.User.Role)},
			{"Registriert am", core.FormatGermanDate(d.User.CreatedAt)},
			{"Letzte Anmeldung", germanTime(d.User.LastLoginAt)},
			{"Exportiert am", core.FormatGermanDate(d.ExportedAt)},
		},
	}

	accounts := workbookSheet{
		name: "Konten",
		columns: []sheetColumn{
			{title: "Name", width: 28}, {title: "IBAN", width: 30}, {title: "BIC", width: 14},
			{title: "Bank", width: 24}, {title: "Art", width: 14}, {title: "Währung", width: 10},
			{title: "Anfangssaldo", width: 16, style: styleMoney}, {title: "Saldo", width: 16, style: styleMoney},
			{title: "Aktiv", width: 8},
		},
	}
	for _, a := range d.Accounts {
		accounts.rows = append(accounts.rows, []any{
			a.Name, a.IBAN.Formatted(), a.BIC, a.BankName, string(a.Type), a.Currency,
			number(a.OpeningBalance.Amount), number(a.Balance.Amount), yesNo(a.IsActive),
		})
	}

	categories := workbookSheet{
		name: "Kategorien",
		columns: []sheetColumn{
			{title: "Name", width: 28}, {title: "Art", width: 12}, {title: "Übergeordnet", width: 24},
			{title: "Stichwörter", width: 40}, {title: "MwSt.", width: 10, style: styleRate},
		},
	}
	for _, c := range d.Categories {
		parent := ""
		if c.ParentID != nil {
			parent = categoryNames[*c.ParentID]
		}
		categories.rows = append(categories.rows, []any{
			c.Name, string(c.Type), parent, joinKeywords(c.Keywords), rateValue(c.DefaultVatRate),
		})
	}

	bookings := workbookSheet{
		name: "Buchungen",
		columns: []sheetColumn{
			{title: "Buchungstag", width: 13, style: styleDate}, {title: "Wertstellung", width: 13, style: styleDate},
			{title: "Konto", width: 24}, {title: "Kategorie", width: 24}, {title: "Art", width: 10},
			{title: "Beschreibung", width: 48}, {title: "Gegenpartei", width: 28}, {title: "IBAN Gegenpartei", width: 30},
			{title: "Betrag", width: 14, style: styleMoney}, {title: "Währung", width: 10},
			{title: "MwSt.-Satz", width: 11, style: styleRate}, {title: "MwSt.", width: 12, style: styleMoney},
			{title: "Notizen", width: 30},
		},
	}
	for _, t := range d.Transactions {
		category := ""
		if t.CategoryID != nil {
			category = categoryNames[*t.CategoryID]
		}
		var valueDate any = ""
		if t.ValueDate != nil {
			valueDate = t.ValueDate.Time
		}
		cpIBAN := ""
		if t.CounterpartyIBAN != nil {
			cpIBAN = t.CounterpartyIBAN.Formatted()
		}
		bookings.rows = append(bookings.rows, []any{
			t.BookingDate.Time, valueDate, accountNames[t.AccountID], category, string(t.Type),
			t.Description, t.Counterparty, cpIBAN, number(t.Amount.Amount), t.Amount.Currency,
			rateValue(t.VatRate), number(t.VatAmount.Amount), t.Notes,
		})
	}

	files := workbookSheet{
		name: "Dateien",
		columns: []sheetColumn{
			{title: "Dateiname", width: 36}, {title: "Größe (Bytes)", width: 14}, {title: "Status", width: 12},
			{title: "Buchungen", width: 11}, {title: "Hochgeladen am", width: 16}, {title: "Verarbeitet am", width: 16},
			{title: "SHA-256", width: 66},
		},
	}
	for _, f := range d.Files {
		files.rows = append(files.rows, []any{
			f.OriginalName, f.Size, string(f.Status), f.TransactionCount,
			core.FormatGermanDate(f.CreatedAt), germanTime(f.ProcessedAt), f.SHA256,
		})
	}

	return []workbookSheet{profile, accounts, categories, bookings, files}
}

func number(d decimal.Decimal) float64 { return d.InexactFloat64() }

func rateValue(v *core.VatRate) any {
	if v == nil {
		return ""
	}
	return v.Decimal().InexactFloat64()
}

func germanTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return core.FormatGermanDate(*t)
}

func yesNo(b bool) string {
	if b {
		return "ja"
	}
	return "nein"
}

func joinKeywords(k []string) string { return strings.Join(k, ", ") }
