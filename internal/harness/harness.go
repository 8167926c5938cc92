package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/abm1119/bita/internal/extract"
	"github.com/abm1119/bita/internal/identity"
	"github.com/abm1119/bita/internal/ledger"
	"github.com/abm1119/bita/internal/localcache"
	"github.com/abm1119/bita/internal/remote"
	"github.com/abm1119/bita/internal/session"
	"github.com/abm1119/bita/internal/store"
	"github.com/abm1119/bita/internal/testutil"
)

const (
	scenarioToken   = "scenario-token"
	scenarioAccount = "scenario-account"
	closeTimeout    = 10 * time.Second
)

type device struct {
	badger  *localcache.Badger
	cache   *testutil.FlakyCache
	session *session.Session
}

// Harness executes one scenario. Devices share the clock, the id sequence
// and the backup slot.
type Harness struct {
	scenario *Scenario
	clock    *testutil.FixedClock
	ids      *sequence
	slot     *remote.MemorySlot
	verifier identity.Verifier
	logger   *zap.Logger
	devices  map[string]*device
}

// Option configures a run.
type Option func(*Harness)

// WithLogger sends session logs to log instead of discarding them.
func WithLogger(log *zap.Logger) Option {
	return func(h *Harness) { h.logger = log }
}

// Run executes a scenario and returns the result.
//
// Every run starts from empty caches and an empty slot, with the clock
// stopped at the scenario's today and ids drawn from a fixed sequence, so
// the trace is reproducible.
//
// Run returns an error only when the scenario cannot be executed at all
// (bad arguments, steps on a device that is not open). Behavior that
// differs from the scenario's declarations is reported in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		clock:    testutil.NewFixedClockOn(scenario.Today),
		ids:      &sequence{prefix: "id-"},
		verifier: identity.Static{Token: scenarioToken, Account: identity.Account{ID: scenarioAccount}},
		logger:   zap.NewNop(),
		devices:  make(map[string]*device),
	}
	if !scenario.LocalOnly {
		h.slot = remote.NewMemorySlot()
	}
	for _, opt := range opts {
		opt(h)
	}
	defer h.closeAll()

	ctx := context.Background()
	result := NewResult()

	if err := h.execute(ctx, Step{Op: OpOpenDevice}, result); err != nil {
		return nil, fmt.Errorf("failed to open main device: %w", err)
	}
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		}
	}

	if err := h.collectState(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	for _, msg := range EvaluateExpectations(result, scenario.Expect) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs one step and checks its outcome against the declaration.
func (h *Harness) execute(ctx context.Context, step Step, result *Result) error {
	name := step.DeviceName()
	ev := TraceEvent{Device: name, Op: step.Op}

	var (
		restored *bool
		stepErr  error
	)
	switch step.Op {
	case OpOpenDevice, OpRestart:
		r, err := h.open(ctx, name, step.Op == OpRestart)
		if err != nil {
			return err
		}
		restored = &r
		stepErr = h.devices[name].session.Warning()

	case OpGoOffline, OpGoOnline:
		if h.slot == nil {
			return errors.New("scenario has no backup slot")
		}
		h.slot.SetOffline(step.Op == OpGoOffline)

	case OpBreakCache, OpFixCache:
		d, ok := h.devices[name]
		if !ok {
			return fmt.Errorf("device %q is not open", name)
		}
		d.cache.FailSaves(step.Op == OpBreakCache)
		d.cache.FailLoads(step.Op == OpBreakCache)

	case OpAdvanceDays:
		n, err := strconv.Atoi(step.Args.Amount)
		if err != nil {
			return fmt.Errorf("advance_days: %w", err)
		}
		h.clock.AdvanceDays(n)

	default:
		s, err := h.session(name)
		if err != nil {
			return err
		}
		var target string
		target, restored, stepErr, err = h.apply(ctx, s, step)
		if err != nil {
			return err
		}
		ev.Target = target
		if step.Op == OpDeleteAccount && stepErr == nil {
			h.devices[name].session = nil
		}
	}

	ev.Restored = restored
	ev.ErrorKind = classify(stepErr)
	ev = result.addTrace(ev)
	h.check(step, ev, stepErr, result)
	return nil
}

// apply runs a session operation. The returned harnessErr is for steps that
// cannot run; stepErr is the operation's own outcome.
func (h *Harness) apply(ctx context.Context, s *session.Session, step Step) (target string, restored *bool, stepErr, harnessErr error) {
	a := step.Args
	switch step.Op {
	case OpAddVendor:
		v, err := s.AddVendor(ctx, ledger.Vendor{
			ID:            a.ID,
			Name:          a.Name,
			ContactPerson: a.Contact,
			Phone:         a.Phone,
			Email:         a.Email,
		})
		return v.ID, nil, err, nil

	case OpDeleteVendor:
		return a.ID, nil, s.DeleteVendor(ctx, a.ID), nil

	case OpAddInvoice:
		inv, err := invoiceFrom(a)
		if err != nil {
			return "", nil, nil, err
		}
		stored, err := s.AddInvoice(ctx, inv)
		if stored.ID == "" {
			stored.ID = inv.ID
		}
		return stored.ID, nil, err, nil

	case OpDeleteInvoice:
		return a.ID, nil, s.DeleteInvoice(ctx, a.ID), nil

	case OpPay:
		paid, err := decimal.NewFromString(a.Amount)
		if err != nil {
			return "", nil, nil, fmt.Errorf("pay amount: %w", err)
		}
		date, err := optionalDate(a.Date)
		if err != nil {
			return "", nil, nil, err
		}
		_, err = s.RecordPayment(ctx, a.ID, paid, date)
		return a.ID, nil, err, nil

	case OpImportCandidate:
		c, err := extract.ResponseExtractor{Response: a.Response}.Extract(ctx, nil)
		if err != nil {
			return "", nil, err, nil
		}
		res, err := s.ImportCandidate(ctx, c)
		return res.Invoice.ID, nil, err, nil

	case OpCopySnapshot:
		from, err := h.session(a.From)
		if err != nil {
			return "", nil, nil, err
		}
		data, err := from.ExportSnapshot(ctx)
		if err != nil {
			return "", nil, nil, fmt.Errorf("export from %q: %w", a.From, err)
		}
		return a.From, nil, s.ImportSnapshot(ctx, data), nil

	case OpPull:
		r, err := s.Pull(ctx)
		return "", &r, err, nil

	case OpPush:
		return "", nil, s.Push(ctx), nil

	case OpDeleteAccount:
		return scenarioAccount, nil, s.DeleteAccount(ctx), nil
	}
	return "", nil, nil, fmt.Errorf("unsupported op %q", step.Op)
}

// check compares a step's outcome with what the scenario declared.
func (h *Harness) check(step Step, ev TraceEvent, stepErr error, result *Result) {
	label := fmt.Sprintf("step %d (%s on %s)", ev.Seq, ev.Op, ev.Device)
	switch {
	case step.Error == "" && stepErr != nil:
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", label, stepErr))
	case step.Error != "" && stepErr == nil:
		result.AddError(fmt.Sprintf("%s: expected %s error, got success", label, step.Error))
	case step.Error != "" && ev.ErrorKind != step.Error:
		result.AddError(fmt.Sprintf("%s: expected %s error, got %s: %v", label, step.Error, ev.ErrorKind, stepErr))
	}
	if step.Restored != nil && (ev.Restored == nil || *ev.Restored != *step.Restored) {
		got := "nothing"
		if ev.Restored != nil {
			got = strconv.FormatBool(*ev.Restored)
		}
		result.AddError(fmt.Sprintf("%s: expected restored=%t, got %s", label, *step.Restored, got))
	}
}

// open starts a session on a device. A new device gets an empty cache;
// restart reuses the device's cache.
func (h *Harness) open(ctx context.Context, name string, restart bool) (bool, error) {
	d, exists := h.devices[name]
	switch {
	case restart && !exists:
		return false, fmt.Errorf("device %q was never opened", name)
	case !restart && exists:
		return false, fmt.Errorf("device %q is already open", name)
	}

	if restart {
		if d.session != nil {
			cctx, cancel := context.WithTimeout(ctx, closeTimeout)
			err := d.session.Close(cctx)
			cancel()
			if err != nil {
				return false, fmt.Errorf("close %q: %w", name, err)
			}
			d.session = nil
		}
	} else {
		b, err := localcache.OpenInMemory(localcache.WithClock(h.clock.Now))
		if err != nil {
			return false, err
		}
		d = &device{badger: b, cache: testutil.NewFlakyCache(b)}
		h.devices[name] = d
	}

	deps := session.Deps{
		Cache:    d.cache,
		Verifier: h.verifier,
		Clock:    h.clock,
		IDs:      h.ids,
		Logger:   h.logger.Named(name),
	}
	if h.slot != nil {
		deps.Slot = h.slot
	}
	s, restored, err := session.Start(ctx, deps, scenarioToken)
	if err != nil {
		return false, fmt.Errorf("start %q: %w", name, err)
	}
	d.session = s
	return restored, nil
}

func (h *Harness) session(name string) (*session.Session, error) {
	d, ok := h.devices[name]
	if !ok || d.session == nil {
		return nil, fmt.Errorf("device %q is not open", name)
	}
	return d.session, nil
}

func (h *Harness) collectState(ctx context.Context, result *Result) error {
	for name, d := range h.devices {
		if d.session == nil {
			continue
		}
		vendors, err := d.session.Vendors(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		invoices, err := d.session.Invoices(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		result.State[name] = DeviceState{Vendors: vendors, Invoices: invoices}
	}
	return nil
}

func (h *Harness) closeAll() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	names := make([]string, 0, len(h.devices))
	for name := range h.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := h.devices[name]
		if d.session != nil {
			if err := d.session.Close(ctx); err != nil {
				h.logger.Warn("close session", zap.String("device", name), zap.Error(err))
			}
		}
		if err := d.badger.Close(); err != nil {
			h.logger.Warn("close cache", zap.String("device", name), zap.Error(err))
		}
	}
}

func invoiceFrom(a StepArgs) (ledger.Invoice, error) {
	issued, err := ledger.ParseDate(a.Issued)
	if err != nil {
		return ledger.Invoice{}, fmt.Errorf("issued: %w", err)
	}
	items := make([]ledger.LineItem, len(a.Items))
	for i, it := range a.Items {
		qty, err := decimal.NewFromString(it.Quantity)
		if err != nil {
			return ledger.Invoice{}, fmt.Errorf("items[%d].quantity: %w", i, err)
		}
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return ledger.Invoice{}, fmt.Errorf("items[%d].unitPrice: %w", i, err)
		}
		items[i] = ledger.LineItem{Name: it.Name, Category: it.Category, Quantity: qty, UnitPrice: price}
	}
	return ledger.NewInvoice(a.ID, a.Vendor, a.Number, issued, items), nil
}

func optionalDate(s string) (*ledger.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := ledger.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("date: %w", err)
	}
	return &d, nil
}

// classify maps an operation error to its kind name. A joined local and
// remote failure classifies as local_storage.
func classify(err error) string {
	switch {
	case err == nil:
		return ""
	case ledger.IsValidation(err):
		return KindValidation
	case errors.Is(err, extract.ErrSchema):
		return KindSchema
	case errors.Is(err, extract.ErrNoCandidate):
		return KindNoCandidate
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, session.ErrSyncDisabled):
		return KindSyncDisabled
	case localcache.IsLocalStorage(err):
		return KindLocalStorage
	case remote.IsUnavailable(err):
		return KindRemoteUnavailable
	}
	return "other"
}

// sequence hands out id-0001, id-0002, ...
type sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (s *sequence) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s%04d", s.prefix, s.n)
}
