package nodes

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/reportgraph/internal/util"
	"github.com/hupe1980/reportgraph/tool"
)

// defaultRequiredFields are checked by the validation node when no
// required_fields param is given.
var defaultRequiredFields = []string{"invoice_number", "amount", "invoice_date"}

var fieldLine = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 _#./-]*?)\s*[:=]\s*(.+?)\s*$`)

// fieldAliases normalizes common labels found on invoices.
var fieldAliases = map[string]string{
	"invoice_no":  "invoice_number",
	"invoice_#":   "invoice_number",
	"inv_no":      "invoice_number",
	"date":        "invoice_date",
	"total":       "amount",
	"grand_total": "amount",
	"vendor":      "party",
	"customer":    "party",
	"supplier":    "party",
}

type documentArgs struct {
	DocumentID string `json:"document_id,omitempty" description:"Document to load; defaults to data.document_id"`
}

func (l *Library) documentTool() *tool.FunctionTool {
	return tool.NewFunctionToolFromStruct(
		TypeDocumentProcessing,
		"Load an uploaded document and expose its text to later steps",
		documentArgs{},
		func(ctx context.Context, args, input map[string]any) (any, error) {
			id := util.ToString(args["document_id"])
			if id == "" {
				id = util.ToString(input["document_id"])
			}

			if id == "" {
				return nil, errors.New("document_id is required")
			}

			doc, err := l.documents.Document(ctx, id)
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"document": map[string]any{
					"id":           doc.ID,
					"name":         doc.Name,
					"content_type": doc.ContentType,
					"text":         doc.Text,
				},
			}, nil
		},
		func(o *tool.Options) { o.Logger = l.logger },
	)
}

// dataExtraction turns "Label: value" lines of the loaded document into
// snake_case fields.
func (l *Library) dataExtraction(_ context.Context, data, _ map[string]any) (any, error) {
	doc, ok := data["document"].(map[string]any)
	if !ok {
		return nil, errors.New("no document loaded")
	}

	fields := map[string]any{}

	for _, line := range strings.Split(util.ToString(doc["text"]), "\n") {
		m := fieldLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		key := normalizeLabel(m[1])
		if _, exists := fields[key]; exists {
			continue
		}

		value := strings.TrimSpace(m[2])
		if f, ok := util.ToFloat(strings.ReplaceAll(value, ",", "")); ok {
			fields[key] = f
			continue
		}

		fields[key] = value
	}

	l.logger.Debug("nodes.document.extracted", "document", doc["id"], "fields", len(fields))

	return map[string]any{"extracted": fields}, nil
}

// invoiceValidation checks the extracted fields against a JSON schema built
// from the required fields.
func (l *Library) invoiceValidation(_ context.Context, data, params map[string]any) (any, error) {
	extracted, ok := data["extracted"].(map[string]any)
	if !ok {
		return nil, errors.New("no extracted data to validate")
	}

	required := defaultRequiredFields
	if list, ok := params["required_fields"].([]any); ok {
		required = make([]string, 0, len(list))
		for _, v := range list {
			required = append(required, util.ToString(v))
		}
	}

	schema, err := util.CompileSchema(map[string]any{
		"type":     "object",
		"required": required,
		"properties": map[string]any{
			"amount": map[string]any{"type": "number", "minimum": 0},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build validation schema: %w", err)
	}

	var problems []any

	if err := schema.Validate(extracted); err != nil {
		problems = append(problems, err.Error())
	}

	if v, ok := extracted["invoice_date"]; ok {
		if _, err := util.ParseDate(v); err != nil {
			problems = append(problems, "invoice_date: "+err.Error())
		}
	}

	return map[string]any{
		"validation": map[string]any{
			"valid":  len(problems) == 0,
			"errors": problems,
		},
	}, nil
}

func normalizeLabel(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.NewReplacer(" ", "_", "-", "_", ".", "", "/", "_").Replace(key)

	if alias, ok := fieldAliases[key]; ok {
		return alias
	}

	return key
}
