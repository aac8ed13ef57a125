package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/rickgao/orderstats/internal/table"
)

// DefaultRequestsPerMinute matches the default per-user Sheets read quota.
const DefaultRequestsPerMinute = 60

// Config holds Sheets backend settings.
type Config struct {
	CredentialsFile   string // Service account JSON key
	RequestsPerMinute int
}

// Opener opens worksheets of Google spreadsheets.
type Opener struct {
	srv     *sheetsapi.Service
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates an Opener. Extra client options are appended after the
// credentials option, so tests can point the service at a local endpoint.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Opener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	all := []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		all = append(all, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	all = append(all, opts...)

	srv, err := sheetsapi.NewService(ctx, all...)
	if err != nil {
		return nil, table.NewError(table.KindFatal, "sheets init", err)
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = DefaultRequestsPerMinute
	}

	return &Opener{
		srv:     srv,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		logger:  logger,
	}, nil
}

// Open checks that the worksheet exists and returns a client for it.
func (o *Opener) Open(ctx context.Context, ref table.Ref) (table.Client, error) {
	if err := o.wait(ctx, "open"); err != nil {
		return nil, err
	}

	ss, err := o.srv.Spreadsheets.Get(ref.Spreadsheet).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("open", err)
	}

	titles := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		if sh.Properties.Title == ref.Sheet {
			o.logger.Debug("worksheet opened", "ref", ref.String())
			return &client{opener: o, ref: ref}, nil
		}
		titles = append(titles, sh.Properties.Title)
	}

	return nil, table.MissingSheetError(ref, titles)
}

func (o *Opener) wait(ctx context.Context, op string) error {
	if err := o.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// The limiter refuses waits that would outlive the call deadline.
		return table.NewError(table.KindQuota, op, err)
	}
	return nil
}

// client is one worksheet.
type client struct {
	opener *Opener
	ref    table.Ref
}

func (c *client) FindRow(ctx context.Context, label string) (int, bool, error) {
	cells, err := c.FindCells(ctx, label)
	if err != nil || len(cells) == 0 {
		return 0, false, err
	}
	return cells[0].Row, true, nil
}

func (c *client) FindColumn(ctx context.Context, label string) (int, bool, error) {
	cells, err := c.FindCells(ctx, label)
	if err != nil || len(cells) == 0 {
		return 0, false, err
	}
	return cells[0].Col, true, nil
}

func (c *client) FindCells(ctx context.Context, label string) ([]table.Cell, error) {
	rows, err := c.get(ctx, "find", quoteSheet(c.ref.Sheet))
	if err != nil {
		return nil, err
	}
	return table.FindIn(rows, label), nil
}

func (c *client) ReadCell(ctx context.Context, row, col int) (string, error) {
	a1, err := c.a1(row, col)
	if err != nil {
		return "", err
	}
	rows, err := c.get(ctx, "read", a1)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return "", nil
	}
	return rows[0][0], nil
}

func (c *client) WriteCell(ctx context.Context, row, col int, value string) error {
	a1, err := c.a1(row, col)
	if err != nil {
		return err
	}
	if err := c.opener.wait(ctx, "write"); err != nil {
		return err
	}

	vr := &sheetsapi.ValueRange{
		Range:  a1,
		Values: [][]interface{}{{value}},
	}
	_, err = c.opener.srv.Spreadsheets.Values.Update(c.ref.Spreadsheet, a1, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return classify("write", err)
	}
	return nil
}

func (c *client) get(ctx context.Context, op, rng string) ([][]string, error) {
	if err := c.opener.wait(ctx, op); err != nil {
		return nil, err
	}

	resp, err := c.opener.srv.Spreadsheets.Values.Get(c.ref.Spreadsheet, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(op, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			rows[i][j] = fmt.Sprint(v)
		}
	}
	return rows, nil
}

func (c *client) a1(row, col int) (string, error) {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", table.NewError(table.KindFatal, "address", err)
	}
	return quoteSheet(c.ref.Sheet) + "!" + name, nil
}

// quoteSheet quotes a worksheet title for use in an A1 range.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// Quota reasons the API reports with HTTP 403.
var quotaReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
}

// classify maps a Sheets API error onto the table error kinds.
func classify(op string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch {
		case gErr.Code == 429:
			return table.NewError(table.KindQuota, op, err)
		case gErr.Code == 403 && hasQuotaReason(gErr):
			return table.NewError(table.KindQuota, op, err)
		case gErr.Code >= 500:
			return table.NewError(table.KindTransient, op, err)
		case gErr.Code == 401 || gErr.Code == 403 || gErr.Code == 404:
			return table.NewError(table.KindFatal, op, err)
		default:
			return table.NewError(table.KindUnknown, op, err)
		}
	}

	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return table.NewError(table.KindFatal, op, err)
	}

	var uErr *url.Error
	var nErr net.Error
	if errors.As(err, &uErr) || errors.As(err, &nErr) || errors.Is(err, context.DeadlineExceeded) {
		return table.NewError(table.KindTransient, op, err)
	}

	return table.NewError(table.KindUnknown, op, err)
}

func hasQuotaReason(e *googleapi.Error) bool {
	for _, item := range e.Errors {
		if quotaReasons[item.Reason] {
			return true
		}
	}
	return false
}
