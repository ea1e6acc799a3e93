package schema

import (
	"strings"
	"time"

	jsreflect "github.com/invopop/jsonschema"
)

// SurfaceKind discriminates Tool-UI payloads.
type SurfaceKind string

const (
	SurfaceDataTable SurfaceKind = "data-table"
	SurfaceStats     SurfaceKind = "stats-display"
	SurfaceApproval  SurfaceKind = "approval"
)

// SurfaceKinds lists every renderable kind.
func SurfaceKinds() []SurfaceKind {
	return []SurfaceKind{SurfaceDataTable, SurfaceStats, SurfaceApproval}
}

// Role classifies a surface's purpose in the conversation. Advisory only.
type Role string

const (
	RoleInformation Role = "information"
	RoleDecision    Role = "decision"
	RoleControl     Role = "control"
	RoleState       Role = "state"
	RoleComposite   Role = "composite"
)

// Outcome is the result recorded by a receipt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomePartial   Outcome = "partial"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Receipt is the durable outcome of a settled action. Never mutated once attached.
type Receipt struct {
	Outcome     Outcome           `json:"outcome" jsonschema:"enum=success,enum=partial,enum=failed,enum=cancelled"`
	Summary     string            `json:"summary" jsonschema:"minLength=1"`
	Identifiers map[string]string `json:"identifiers,omitempty"`
	At          time.Time         `json:"at"`
}

// SurfaceIdentity is embedded by every payload.
type SurfaceIdentity struct {
	ID      string   `json:"id" jsonschema:"minLength=1"`
	Role    Role     `json:"role,omitempty" jsonschema:"enum=information,enum=decision,enum=control,enum=state,enum=composite"`
	Receipt *Receipt `json:"receipt,omitempty"`
}

func (s SurfaceIdentity) Identity() SurfaceIdentity { return s }

// Payload is a validated surface of any kind.
type Payload interface {
	Identity() SurfaceIdentity
	SurfaceKind() SurfaceKind
}

// Variant is the visual weight of an action button.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
	VariantSecondary   Variant = "secondary"
	VariantGhost       Variant = "ghost"
	VariantOutline     Variant = "outline"
)

// Action describes one button in an action group.
type Action struct {
	ID           string  `json:"id" jsonschema:"minLength=1"`
	Label        string  `json:"label" jsonschema:"minLength=1"`
	Sentence     string  `json:"sentence,omitempty"`
	ConfirmLabel string  `json:"confirmLabel,omitempty"`
	Variant      Variant `json:"variant,omitempty" jsonschema:"enum=default,enum=destructive,enum=secondary,enum=ghost,enum=outline"`
	Icon         string  `json:"icon,omitempty"`
	Loading      bool    `json:"loading,omitempty"`
	Disabled     bool    `json:"disabled,omitempty"`
	Shortcut     string  `json:"shortcut,omitempty"`
}

// ResolvedVariant returns the declared variant or the inferred one.
func (a Action) ResolvedVariant() Variant {
	if a.Variant != "" {
		return a.Variant
	}
	return InferVariant(a.ID)
}

var negatoryIntents = map[string]struct{}{
	"cancel": {}, "dismiss": {}, "skip": {}, "no": {}, "reset": {}, "close": {},
	"decline": {}, "reject": {}, "back": {}, "later": {}, "not-now": {}, "maybe-later": {},
}

// IsNegatory reports whether an action id names a backing-out intent.
func IsNegatory(actionID string) bool {
	id := strings.ToLower(strings.TrimSpace(actionID))
	id = strings.ReplaceAll(id, "_", "-")
	_, ok := negatoryIntents[id]
	return ok
}

// InferVariant returns ghost for negatory ids and default otherwise.
func InferVariant(actionID string) Variant {
	if IsNegatory(actionID) {
		return VariantGhost
	}
	return VariantDefault
}

// Align is a column's horizontal alignment.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Priority controls card-layout visibility.
type Priority string

const (
	PriorityPrimary   Priority = "primary"
	PrioritySecondary Priority = "secondary"
	PriorityTertiary  Priority = "tertiary"
)

type Column struct {
	Key          string   `json:"key" jsonschema:"minLength=1"`
	Label        string   `json:"label"`
	Abbr         string   `json:"abbr,omitempty"`
	Sortable     *bool    `json:"sortable,omitempty"`
	Align        Align    `json:"align,omitempty" jsonschema:"enum=left,enum=center,enum=right"`
	Width        int      `json:"width,omitempty" jsonschema:"minimum=1"`
	Truncate     bool     `json:"truncate,omitempty"`
	Priority     Priority `json:"priority,omitempty" jsonschema:"enum=primary,enum=secondary,enum=tertiary"`
	HideOnMobile bool     `json:"hideOnMobile,omitempty"`
	Format       *Format  `json:"format,omitempty"`
}

// IsSortable defaults to true.
func (c Column) IsSortable() bool {
	return c.Sortable == nil || *c.Sortable
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortState is either zero (unsorted) or has both fields set.
type SortState struct {
	By        string        `json:"by,omitempty"`
	Direction SortDirection `json:"direction,omitempty" jsonschema:"enum=asc,enum=desc"`
}

func (s SortState) IsZero() bool { return s.By == "" && s.Direction == "" }

// Layout selects table or card rendering.
type Layout string

const (
	LayoutAuto  Layout = "auto"
	LayoutTable Layout = "table"
	LayoutCards Layout = "cards"
)

type DataTable struct {
	Surface SurfaceKind `json:"surface,omitempty" jsonschema:"enum=data-table"`
	SurfaceIdentity
	Columns      []Column   `json:"columns" jsonschema:"minItems=1"`
	Data         []Row      `json:"data"`
	RowIDKey     string     `json:"rowIdKey,omitempty"`
	DefaultSort  *SortState `json:"defaultSort,omitempty"`
	Sort         *SortState `json:"sort,omitempty"`
	EmptyMessage string     `json:"emptyMessage,omitempty"`
	Layout       Layout     `json:"layout,omitempty" jsonschema:"enum=auto,enum=table,enum=cards"`
	Locale       string     `json:"locale,omitempty"`
	Actions      []Action   `json:"actions,omitempty"`
}

func (DataTable) SurfaceKind() SurfaceKind { return SurfaceDataTable }

// Column returns the column with key.
func (t DataTable) Column(key string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

type Diff struct {
	Value        float64 `json:"value"`
	Decimals     *int    `json:"decimals,omitempty" jsonschema:"minimum=0,maximum=20"`
	UpIsPositive *bool   `json:"upIsPositive,omitempty"`
	Label        string  `json:"label,omitempty"`
}

// UpIsGood defaults to true.
func (d Diff) UpIsGood() bool {
	return d.UpIsPositive == nil || *d.UpIsPositive
}

type Sparkline struct {
	Data  []float64 `json:"data" jsonschema:"minItems=2"`
	Color string    `json:"color,omitempty"`
}

type StatItem struct {
	Key       string     `json:"key" jsonschema:"minLength=1"`
	Label     string     `json:"label"`
	Value     Value      `json:"value"`
	Format    *Format    `json:"format,omitempty"`
	Diff      *Diff      `json:"diff,omitempty"`
	Sparkline *Sparkline `json:"sparkline,omitempty"`
}

// JSONSchemaExtend narrows a stat value to string or number.
func (StatItem) JSONSchemaExtend(s *jsreflect.Schema) {
	if s.Properties == nil {
		return
	}
	s.Properties.Set("value", &jsreflect.Schema{
		AnyOf: []*jsreflect.Schema{{Type: "string"}, {Type: "number"}},
	})
}

type StatsDisplay struct {
	Surface SurfaceKind `json:"surface,omitempty" jsonschema:"enum=stats-display"`
	SurfaceIdentity
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Stats       []StatItem `json:"stats" jsonschema:"minItems=1"`
	Locale      string     `json:"locale,omitempty"`
}

func (StatsDisplay) SurfaceKind() SurfaceKind { return SurfaceStats }

type ApprovalPrompt struct {
	Surface SurfaceKind `json:"surface,omitempty" jsonschema:"enum=approval"`
	SurfaceIdentity
	Title            string   `json:"title" jsonschema:"minLength=1"`
	Description      string   `json:"description,omitempty"`
	Actions          []Action `json:"actions" jsonschema:"minItems=1"`
	ConfirmTimeoutMS int      `json:"confirmTimeoutMs,omitempty" jsonschema:"minimum=0"`
}

func (ApprovalPrompt) SurfaceKind() SurfaceKind { return SurfaceApproval }
