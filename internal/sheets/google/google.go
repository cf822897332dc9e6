package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"finanzen/internal/log"
	ports "finanzen/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger

	headerMu    sync.Mutex
	headerReady bool
}

// Ensure interface conformance
var _ ports.TransactionWriter = (*Client)(nil)

// New creates a Sheets client. Service account credentials come from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS. Without them a user token obtained with
// finanzen-sheets-auth is used (GOOGLE_OAUTH_CLIENT_JSON or _FILE plus
// GOOGLE_OAUTH_TOKEN_JSON or _FILE). Extra options are appended after the
// credentials.
func New(ctx context.Context, spreadsheetID, sheetName string, logger *log.Logger, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	auth, err := credentialsFromEnv(ctx, logger)
	if err != nil {
		return nil, err
	}
	opts = append(auth, opts...)
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newWithService(svc, spreadsheetID, sheetName, logger), nil
}

func newWithService(svc *gsheet.Service, spreadsheetID, sheetName string, logger *log.Logger) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Buchungen"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     strings.TrimSpace(sheetName),
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

func credentialsFromEnv(ctx context.Context, logger *log.Logger) ([]goption.ClientOption, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var creds []byte
	switch {
	case serviceAccountJSON != "":
		logger.DebugContext(ctx, "Using inline service account credentials")
		creds = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		logger.DebugContext(ctx, "Read service account credentials", "path", serviceAccountFile, "size", len(b))
		creds = b
	case hasOAuthEnv():
		ts, err := userTokenSource(ctx)
		if err != nil {
			return nil, err
		}
		logger.DebugContext(ctx, "Using OAuth user token")
		return []goption.ClientOption{goption.WithTokenSource(ts)}, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	return []goption.ClientOption{
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, nil
}

func (c *Client) rangeOf(cols string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(c.sheetName, "'", "''"), cols)
}

// EnsureHeader writes the column titles into row 1 when it is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	c.headerMu.Lock()
	defer c.headerMu.Unlock()
	if c.headerReady {
		return nil
	}

	rng := c.rangeOf("A1:H1")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header %s: %w", rng, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		vr := &gsheet.ValueRange{Values: [][]any{ports.Header}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write header %s: %w", rng, err)
		}
		c.logger.InfoContext(ctx, "Wrote spreadsheet header", "sheet", c.sheetName)
	}
	c.headerReady = true
	return nil
}

// Append adds one row below the last row of the sheet and returns the updated range.
func (c *Client) Append(ctx context.Context, r ports.Row) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if r.TransactionID == "" {
		return "", errors.New("row without transaction id")
	}
	if err := c.EnsureHeader(ctx); err != nil {
		return "", err
	}

	vr := &gsheet.ValueRange{Values: [][]any{r.Values()}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.rangeOf("A:H"), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := c.rangeOf("A:H")
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Row appended",
		log.FieldTransactionID, r.TransactionID,
		log.FieldSheetsRef, ref)
	return ref, nil
}
