package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/cwygoda/pitcher/internal/domain"
)

// fieldAttr tags every detected input so later steps can find it again.
const fieldAttr = "data-pitcher-field"

const maxEvidenceText = 4000

// ErrElementNotFound is returned when no selector candidate matches.
var ErrElementNotFound = errors.New("waiting for selector: element not found")

// Driver is one page session. It is not safe for concurrent use.
type Driver struct {
	page        *rod.Page
	incognito   *rod.Browser
	opts        domain.DriverOptions
	evidenceDir string
	sleep       func(context.Context, time.Duration) error
}

var _ domain.Driver = (*Driver)(nil)

func (d *Driver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return d.sleep(ctx, d.opts.PostActionWait)
}

// detectScript tags visible inputs and returns their descriptors as JSON.
const detectScript = `(attr) => {
	const out = [];
	const labelFor = (el) => {
		if (el.id) {
			const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (l) return l.innerText;
		}
		const p = el.closest('label');
		if (p) return p.innerText;
		return el.getAttribute('aria-label') || el.placeholder || '';
	};
	const els = document.querySelectorAll('input, textarea, select');
	let n = 0;
	for (const el of els) {
		const type = (el.getAttribute('type') || el.tagName).toLowerCase();
		if (['hidden', 'submit', 'button', 'reset', 'image'].includes(type)) continue;
		el.setAttribute(attr, String(n));
		out.push({
			idx: n,
			name: el.name || el.id || '',
			label: labelFor(el).trim(),
			type: type,
			required: el.required || el.getAttribute('aria-required') === 'true',
			options: el.tagName === 'SELECT' ? Array.from(el.options).map(o => o.text.trim()) : [],
		});
		n++;
	}
	return JSON.stringify(out);
}`

type rawField struct {
	Idx      int      `json:"idx"`
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options"`
}

func (d *Driver) DetectFields(ctx context.Context) (domain.FieldSet, error) {
	res, err := d.page.Context(ctx).Eval(detectScript, fieldAttr)
	if err != nil {
		return nil, fmt.Errorf("detect fields: %w", err)
	}
	return parseFields(res.Value.Str())
}

func parseFields(raw string) (domain.FieldSet, error) {
	var rf []rawField
	if err := json.Unmarshal([]byte(raw), &rf); err != nil {
		return nil, fmt.Errorf("detect fields: %w", err)
	}
	fs := make(domain.FieldSet, 0, len(rf))
	for _, f := range rf {
		fs = append(fs, domain.Field{
			Selector: encodeSelector(f.Idx, f.Name),
			Name:     f.Name,
			Label:    f.Label,
			Kind:     fieldKind(f.Type),
			Required: f.Required,
			Options:  f.Options,
		})
	}
	return fs, nil
}

func fieldKind(t string) domain.FieldKind {
	switch t {
	case "email":
		return domain.FieldEmail
	case "tel":
		return domain.FieldPhone
	case "file":
		return domain.FieldFile
	case "textarea":
		return domain.FieldTextArea
	case "select", "select-one", "select-multiple":
		return domain.FieldSelect
	case "checkbox", "radio":
		return domain.FieldCheckbox
	}
	return domain.FieldText
}

// encodeSelector packs the tag index and the field name into the opaque
// selector handed back to Fill.
func encodeSelector(idx int, name string) string {
	return strconv.Itoa(idx) + "|" + name
}

// candidates expands a selector into CSS candidates, most specific first,
// bounded by the fallback count.
func candidates(sel string, fallbacks int) []string {
	idx, name, _ := strings.Cut(sel, "|")
	out := []string{fmt.Sprintf("[%s=%q]", fieldAttr, idx)}
	if name != "" {
		out = append(out, fmt.Sprintf("[name=%q]", name), fmt.Sprintf("#%s", cssIdent(name)))
	}
	if fallbacks <= 0 {
		fallbacks = 1
	}
	if len(out) > fallbacks {
		out = out[:fallbacks]
	}
	return out
}

func cssIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
			continue
		}
		b.WriteString(`\` + strconv.FormatInt(int64(r), 16) + " ")
	}
	return b.String()
}

func (d *Driver) find(ctx context.Context, sels []string) (*rod.Element, error) {
	p := d.page.Context(ctx)
	for _, s := range sels {
		ok, el, err := p.Has(s)
		if err != nil {
			return nil, err
		}
		if ok {
			return el, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrElementNotFound, strings.Join(sels, ", "))
}

func (d *Driver) prepare(ctx context.Context, el *rod.Element) error {
	if err := d.sleep(ctx, d.opts.PreActionWait+d.opts.StepDelay); err != nil {
		return err
	}
	if d.opts.ScrollBeforeClick {
		if err := el.ScrollIntoView(); err != nil {
			return fmt.Errorf("scroll into view: %w", err)
		}
		if err := d.sleep(ctx, d.opts.PostAnimationWait); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) Fill(ctx context.Context, field domain.Field, value string) error {
	el, err := d.find(ctx, candidates(field.Selector, d.opts.FallbackSelectors))
	if err != nil {
		return err
	}
	if err := d.prepare(ctx, el); err != nil {
		return err
	}

	switch field.Kind {
	case domain.FieldFile:
		err = el.SetFiles([]string{value})
	case domain.FieldSelect:
		err = el.Select([]string{value}, true, rod.SelectorTypeText)
	case domain.FieldCheckbox:
		if value == "true" {
			var checked bool
			checked, err = d.checked(el)
			if err == nil && !checked {
				err = el.Click(proto.InputMouseButtonLeft, 1)
			}
		}
	default:
		if err = el.SelectAllText(); err == nil {
			err = el.Input(value)
		}
	}
	if err != nil {
		return fmt.Errorf("fill %s: %w", field.Name, err)
	}
	return d.sleep(ctx, d.opts.PostActionWait)
}

func (d *Driver) checked(el *rod.Element) (bool, error) {
	v, err := el.Property("checked")
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

var submitSelectors = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
	`[data-qa="btn-submit"]`,
	`#submit_app`,
}

var submitText = `/submit|apply|send application/i`

// Submit clicks the first submit control it finds. It reports false when
// the page has none.
func (d *Driver) Submit(ctx context.Context) (bool, error) {
	p := d.page.Context(ctx)
	var el *rod.Element
	for _, s := range submitSelectors {
		ok, e, err := p.Has(s)
		if err != nil {
			return false, err
		}
		if ok {
			el = e
			break
		}
	}
	if el == nil {
		ok, e, err := p.HasR("button, a[role=button]", submitText)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		el = e
	}

	if err := d.prepare(ctx, el); err != nil {
		return false, err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("click submit: %w", err)
	}
	return true, d.sleep(ctx, d.opts.PostActionWait)
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *Driver) PageText(ctx context.Context) (string, error) {
	res, err := d.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// CaptureEvidence records the current URL and text, plus a screenshot
// when an evidence directory is configured.
func (d *Driver) CaptureEvidence(ctx context.Context) (domain.Evidence, error) {
	var ev domain.Evidence
	var err error
	if ev.URL, err = d.CurrentURL(ctx); err != nil {
		return ev, err
	}
	text, err := d.PageText(ctx)
	if err != nil {
		return ev, err
	}
	ev.Text = truncate(text, maxEvidenceText)

	if d.evidenceDir == "" {
		return ev, nil
	}
	img, err := d.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return ev, fmt.Errorf("screenshot: %w", err)
	}
	path := filepath.Join(d.evidenceDir, uuid.NewString()+".png")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return ev, fmt.Errorf("write screenshot: %w", err)
	}
	ev.Ref = path
	return ev, nil
}

func (d *Driver) Close() error {
	err := d.page.Close()
	if d.incognito != nil {
		err = errors.Join(err, d.incognito.Close())
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
