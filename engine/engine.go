// Package engine runs an audit end to end: it reads the archive, selects
// and allocates findings, exchanges one batch with the triage service and
// merges the answers back into the archive.
//
// Batch-level failures (rejection, timeout, cancellation) abort the run
// before the archive is touched. Per-finding failures only reduce the
// aggregate status.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/allocation"
	"github.com/zero-day-ai/aviator/archive"
	"github.com/zero-day-ai/aviator/auditdoc"
	"github.com/zero-day-ai/aviator/config"
	"github.com/zero-day-ai/aviator/eligibility"
	"github.com/zero-day-ai/aviator/filter"
	"github.com/zero-day-ai/aviator/filtertemplate"
	"github.com/zero-day-ai/aviator/finding"
	"github.com/zero-day-ai/aviator/merge"
	"github.com/zero-day-ai/aviator/tags"
	"github.com/zero-day-ai/aviator/telemetry"
	"github.com/zero-day-ai/aviator/triage"
)

// Submitter exchanges a batch with the triage service.
// *triage.Coordinator satisfies it.
type Submitter interface {
	Submit(ctx context.Context, batch []finding.Candidate, meta triage.ProjectMetadata, token string) (map[string]triage.Verdict, error)
}

// Input describes one run.
type Input struct {
	ArchivePath string
	Findings    []finding.Finding
	Project     triage.ProjectMetadata
	Token       string
}

// Outcome summarizes a run.
type Outcome struct {
	Status    Status          `json:"status,omitempty"`
	ResultTag tags.Definition `json:"-"`

	// Eligible counts findings that passed the eligibility checks, Filtered
	// those that also passed the filter set.
	Eligible int `json:"eligible"`
	Filtered int `json:"filtered"`
	Included int `json:"included"`
	Skipped  int `json:"skipped"`

	Succeeded int `json:"succeeded"`
	Merged    int `json:"merged"`
	Annotated int `json:"annotated"`
	Failed    int `json:"failed"`

	Plan     *allocation.Plan          `json:"-"`
	Verdicts map[string]triage.Verdict `json:"verdicts,omitempty"`
}

// Engine orchestrates audit runs. It holds no per-run state and may be
// used for several runs, one at a time per archive.
type Engine struct {
	submitter     Submitter
	limits        allocation.Limits
	requireSource bool
	resultTag     config.ResultTagConfig
	mapping       *config.TagMapping
	rule          *eligibility.Rule
	rewriter      *archive.Rewriter
	progress      Progress
	tel           *telemetry.Telemetry
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimits sets the triage budget.
func WithLimits(limits allocation.Limits) Option {
	return func(e *Engine) {
		e.limits = limits
	}
}

// WithRequireSource controls whether archives without source are rejected.
func WithRequireSource(require bool) Option {
	return func(e *Engine) {
		e.requireSource = require
	}
}

// WithResultTag names the tag verdicts are written to.
func WithResultTag(name, id string) Option {
	return func(e *Engine) {
		e.resultTag = config.ResultTagConfig{Name: name, ID: id}
	}
}

// WithTagMapping sets the tier mapping.
func WithTagMapping(mapping *config.TagMapping) Option {
	return func(e *Engine) {
		if mapping != nil {
			e.mapping = mapping
		}
	}
}

// WithRule sets an exclusion rule applied after the eligibility checks.
func WithRule(rule *eligibility.Rule) Option {
	return func(e *Engine) {
		e.rule = rule
	}
}

// WithRewriter sets the archive rewriter.
func WithRewriter(r *archive.Rewriter) Option {
	return func(e *Engine) {
		if r != nil {
			e.rewriter = r
		}
	}
}

// WithProgress sets the milestone receiver.
func WithProgress(p Progress) Option {
	return func(e *Engine) {
		if p != nil {
			e.progress = p
		}
	}
}

// WithTelemetry sets span and metric recording.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(e *Engine) {
		if t != nil {
			e.tel = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock sets the time source for new documents, comments and trail
// entries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine with default limits, the default tag mapping and
// source required.
func New(submitter Submitter, opts ...Option) *Engine {
	e := &Engine{
		submitter:     submitter,
		limits:        allocation.DefaultLimits(),
		requireSource: true,
		mapping:       config.DefaultTagMapping(),
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.progress == nil {
		e.progress = LogProgress{Logger: e.logger}
	}
	if e.rewriter == nil {
		e.rewriter = archive.NewRewriter(archive.WithLogger(e.logger))
	}
	if e.tel == nil {
		e.tel = telemetry.Noop()
	}
	return e
}

// FromConfig creates an Engine from run configuration, loading the tag
// mapping and compiling the exclusion rule. opts are applied last.
func FromConfig(cfg *config.Config, submitter Submitter, opts ...Option) (*Engine, error) {
	const op = "engine.FromConfig"

	mapping, err := config.LoadTagMapping(cfg.TagMapping)
	if err != nil {
		return nil, err
	}

	var rule *eligibility.Rule
	if cfg.ExclusionRule != "" {
		rule, err = eligibility.CompileRule(cfg.ExclusionRule)
		if err != nil {
			return nil, aviator.NewSimpleError(op, err).
				WithContext(map[string]any{"exclusion_rule": cfg.ExclusionRule})
		}
	}

	base := []Option{
		WithLimits(cfg.GetLimits()),
		WithRequireSource(cfg.GetRequireSource()),
		WithResultTag(cfg.ResultTag.Name, cfg.ResultTag.ID),
		WithTagMapping(mapping),
		WithRule(rule),
	}
	return New(submitter, append(base, opts...)...), nil
}

// prepared is the state built before any network call.
type prepared struct {
	doc       *auditdoc.Document
	template  *filtertemplate.Template
	resultTag tags.Definition
	eligible  []finding.Finding
	filtered  []finding.Finding
	plan      *allocation.Plan
}

// Plan runs the pipeline up to allocation without contacting the triage
// service or writing the archive. The returned Outcome has no Status.
func (e *Engine) Plan(ctx context.Context, in Input) (*Outcome, error) {
	p, err := e.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	return p.outcome(), nil
}

// Run performs a full audit of in.ArchivePath.
func (e *Engine) Run(ctx context.Context, in Input) (out *Outcome, err error) {
	const op = "engine.Run"
	start := time.Now()

	ctx, span := e.tel.Start(ctx, "audit.run", attribute.String("archive", in.ArchivePath))
	defer func() {
		telemetry.End(span, err)
		if err != nil {
			e.progress.Error(err)
		}
	}()

	e.progress.Start(in.ArchivePath, len(in.Findings))

	p, err := e.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	out = p.outcome()

	if out.Included > 0 {
		verdicts, err := e.submit(ctx, p.plan.Included, in)
		if err != nil {
			return nil, aviator.Classify(op, err)
		}
		out.Verdicts = verdicts
	}

	mctx, mspan := e.tel.Start(ctx, "audit.merge")
	e.merge(mctx, p, out)
	telemetry.End(mspan, nil)

	if err := e.persist(ctx, in.ArchivePath, p, out); err != nil {
		return nil, err
	}

	out.Status = AggregateStatus(out.Filtered, out.Succeeded, out.Merged, out.Annotated)
	span.SetAttributes(attribute.String("status", out.Status.String()))
	e.tel.Run(ctx, out.Status.String(), time.Since(start))
	e.progress.Completed(out)

	return out, nil
}

func (e *Engine) prepare(ctx context.Context, in Input) (p *prepared, err error) {
	const op = "engine.prepare"

	ctx, span := e.tel.Start(ctx, "audit.prepare")
	defer func() { telemetry.End(span, err) }()

	if err := ctx.Err(); err != nil {
		return nil, aviator.NewInterruptedError(op, err)
	}

	if err := archive.Validate(in.ArchivePath, e.requireSource); err != nil {
		return nil, err
	}

	p = &prepared{}
	if p.doc, p.template, err = e.load(in.ArchivePath); err != nil {
		return nil, err
	}

	tagID := e.resultTag.ID
	if tagID == "" {
		tagID = e.mapping.TagID
	}
	p.resultTag = p.template.ResolveResultTag(e.resultTag.Name, tagID)

	findings := make([]finding.Finding, 0, len(in.Findings))
	for i := range in.Findings {
		if err := in.Findings[i].Validate(); err != nil {
			e.logger.Warn("ignoring invalid finding", "error", err)
			continue
		}
		findings = append(findings, in.Findings[i])
	}

	p.eligible = eligibility.NewFilter(p.resultTag.ID,
		eligibility.WithRule(e.rule),
		eligibility.WithLogger(e.logger),
	).Apply(findings, p.doc)
	p.filtered = filter.Apply(p.template.DefaultFilterSet(), p.eligible)
	e.progress.Filtered(len(p.eligible), len(p.filtered))

	p.plan = allocation.Allocate(p.filtered, e.limits)
	e.progress.Allocated(p.plan)

	e.tel.Findings(ctx, "eligible", len(p.eligible))
	e.tel.Findings(ctx, "filtered", len(p.filtered))
	e.tel.Findings(ctx, "included", len(p.plan.Included))
	for _, reason := range []allocation.SkipReason{allocation.PerCategoryExceeded, allocation.PerTotalExceeded} {
		e.tel.Findings(ctx, "skipped", p.plan.SkippedBy(reason), attribute.String("reason", reason.String()))
	}

	return p, nil
}

// load reads audit.xml (or creates an empty document) and, when present,
// filtertemplate.xml. An unparsable template is ignored with a warning.
func (e *Engine) load(path string) (*auditdoc.Document, *filtertemplate.Template, error) {
	const op = "engine.load"

	r, err := archive.Open(path)
	if err != nil {
		return nil, nil, aviator.NewTechnicalError(op, err)
	}
	defer aviator.CloseWithLog(r, e.logger, "archive")

	data, ok, err := r.ReadFile(archive.AuditEntry)
	if err != nil {
		return nil, nil, aviator.NewTechnicalError(op, err)
	}

	var doc *auditdoc.Document
	if ok {
		doc, err = auditdoc.Parse(data)
		if err != nil {
			return nil, nil, aviator.NewSimpleError(op, fmt.Errorf("%w: %v", aviator.ErrInvalidArchive, err)).
				WithContext(map[string]any{"path": path, "entry": archive.AuditEntry})
		}
	} else {
		e.logger.Debug("archive has no audit document, starting empty", "path", path)
		doc = auditdoc.New(e.now())
	}

	data, ok, err = r.ReadFile(archive.FilterTemplateEntry)
	if err != nil {
		return nil, nil, aviator.NewTechnicalError(op, err)
	}
	if !ok {
		return doc, nil, nil
	}

	tmpl, err := filtertemplate.Parse(data)
	if err != nil {
		e.logger.Warn("ignoring unreadable filter template", "path", path, "error", err)
		return doc, nil, nil
	}
	return doc, tmpl, nil
}

func (e *Engine) submit(ctx context.Context, included []finding.Finding, in Input) (verdicts map[string]triage.Verdict, err error) {
	batch := finding.NewCandidates(included)

	ctx, span := e.tel.Start(ctx, "audit.triage", attribute.Int("candidates", len(batch)))
	defer func() { telemetry.End(span, err) }()

	e.progress.Submitted(len(batch))
	return e.submitter.Submit(ctx, batch, in.Project, in.Token)
}

// merge applies verdicts in batch order, then skip annotations.
func (e *Engine) merge(ctx context.Context, p *prepared, out *Outcome) {
	m := merge.New(e.mapping, p.resultTag.ID)
	m.Now = e.now

	for _, fd := range p.plan.Included {
		v, ok := out.Verdicts[fd.InstanceID]
		if !ok {
			e.logger.Warn("no verdict received", "instance_id", fd.InstanceID)
			out.Failed++
			continue
		}
		e.tel.Verdict(ctx, v.Status, string(v.Outcome), v.Tier, v.InputTokens, v.OutputTokens)

		succeeded := v.Succeeded()
		if succeeded {
			out.Succeeded++
		}

		changed, err := m.ApplyVerdict(p.doc, v)
		switch {
		case err != nil:
			e.logger.Warn("failed to merge verdict", "instance_id", fd.InstanceID, "error", err)
			out.Failed++
		case changed && succeeded:
			out.Merged++
		case changed:
			out.Annotated++
		default:
			e.logger.Debug("verdict not merged",
				"instance_id", fd.InstanceID,
				"status", v.Status,
				"message", v.StatusMessage)
			out.Failed++
		}
	}

	for _, skip := range p.plan.Skipped {
		if err := m.ApplySkip(p.doc, skip); err != nil {
			e.logger.Warn("failed to annotate skipped finding", "instance_id", skip.Finding.InstanceID, "error", err)
			continue
		}
		out.Annotated++
	}
}

// persist writes the audit document, and the filter template when tag
// definitions were added, back into the archive. Nothing is written when
// no record changed.
func (e *Engine) persist(ctx context.Context, path string, p *prepared, out *Outcome) (err error) {
	const op = "engine.persist"

	if out.Merged+out.Annotated == 0 {
		return nil
	}

	templateChanged := false
	if p.template != nil {
		templateChanged = p.template.EnsureTagDefinitions(tags.Aviator()...)
	}

	ctx, span := e.tel.Start(ctx, "audit.persist")
	defer func() { telemetry.End(span, err) }()

	data, err := p.doc.Bytes()
	if err != nil {
		return aviator.NewTechnicalError(op, err)
	}

	replacements := map[string][]byte{archive.AuditEntry: data}
	if templateChanged {
		replacements[archive.FilterTemplateEntry] = p.template.Bytes()
	}
	return e.rewriter.Rewrite(ctx, path, replacements)
}

func (p *prepared) outcome() *Outcome {
	return &Outcome{
		ResultTag: p.resultTag,
		Eligible:  len(p.eligible),
		Filtered:  len(p.filtered),
		Included:  len(p.plan.Included),
		Skipped:   len(p.plan.Skipped),
		Plan:      p.plan,
	}
}
