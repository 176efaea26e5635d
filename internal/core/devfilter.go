// DevFilter: a rule-driven trigger -> match -> write device, the
// end-to-end example exercising Channel, Device, Scheduler and Task
// together. Grounded on a reference DevFilter implementation:
// the same rule string grammar, the same InternalRule-style channel
// binding at start, the same DelayWriter-equivalent task for delayed
// writes, and the same validation rules (index bounds, float/int trigger
// asymmetry).

package sihd_core

import (
	"fmt"
	"strconv"
	"strings"

	sihd_util "github.com/mdufaud/sihd-sub000/internal/util"
)

var devFilterLog = sihd_util.NewCompLogger("devfilter")

type MatchOp int

const (
	MatchEqual MatchOp = iota
	MatchLess
	MatchLessEq
	MatchGreater
	MatchGreaterEq
	MatchBitAnd
	MatchBitOr
	MatchBitXor
)

var matchOpNames = map[MatchOp]string{
	MatchEqual:     "equal",
	MatchLess:      "less",
	MatchLessEq:    "less_eq",
	MatchGreater:   "greater",
	MatchGreaterEq: "greater_eq",
	MatchBitAnd:    "bit_and",
	MatchBitOr:     "bit_or",
	MatchBitXor:    "bit_xor",
}

func (op MatchOp) String() string {
	if name, ok := matchOpNames[op]; ok {
		return name
	}
	return fmt.Sprintf("MatchOp(%d)", int(op))
}

// Evaluate applies the operator to (in, trigger). Bitwise operators treat
// both operands as signed 64-bit integers; the rest compare as float64 so
// that an int-vs-float comparison (an accepted asymmetry) behaves sensibly.
func (op MatchOp) Evaluate(in, trigger sihd_util.Value) bool {
	switch op {
	case MatchEqual:
		return in.AsFloat64() == trigger.AsFloat64()
	case MatchLess:
		return in.AsFloat64() < trigger.AsFloat64()
	case MatchLessEq:
		return in.AsFloat64() <= trigger.AsFloat64()
	case MatchGreater:
		return in.AsFloat64() > trigger.AsFloat64()
	case MatchGreaterEq:
		return in.AsFloat64() >= trigger.AsFloat64()
	case MatchBitAnd:
		return in.AsInt64()&trigger.AsInt64() != 0
	case MatchBitOr:
		return in.AsInt64()|trigger.AsInt64() != 0
	case MatchBitXor:
		return in.AsInt64()^trigger.AsInt64() != 0
	default:
		return false
	}
}

// Rule is the parsed form of a rule configuration string.
type Rule struct {
	Op MatchOp

	InChannel  string
	OutChannel string

	TriggerIdx      int
	TriggerValue    sihd_util.Value
	HasTriggerValue bool // false means "any value at this index matches"

	WriteIdx       int
	WriteValue     sihd_util.Value
	WriteSameValue bool // true: pass the input value through unchanged

	ShouldMatch bool
	NanoDelay   int64
}

func splitIdxValue(s string) (idxPart, valPart string, hasColon bool) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return "", s, false
	}
	return s[:i], s[i+1:], true
}

// ParseRule parses a ';'-separated "key=value" rule string into a Rule
// bound to the given match operator (the operator is chosen by the caller
// via the AddXxxRule convenience methods, mirroring the original's
// set_filter_equal/set_filter_superior/... dispatch rather than being a
// key inside the string itself).
func ParseRule(op MatchOp, ruleStr string) (*Rule, error) {
	fields := make(map[string]string)
	for _, part := range strings.Split(ruleStr, ";") {
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("sihd_core: malformed rule field %q", part)
		}
		fields[kv[0]] = kv[1]
	}

	in, ok := fields["in"]
	if !ok {
		return nil, fmt.Errorf("sihd_core: rule missing required key 'in': %q", ruleStr)
	}
	out, ok := fields["out"]
	if !ok {
		return nil, fmt.Errorf("sihd_core: rule missing required key 'out': %q", ruleStr)
	}
	triggerRaw, ok := fields["trigger"]
	if !ok {
		return nil, fmt.Errorf("sihd_core: rule missing required key 'trigger': %q", ruleStr)
	}

	rule := &Rule{Op: op, InChannel: in, OutChannel: out, ShouldMatch: true}

	if err := parseTrigger(rule, triggerRaw); err != nil {
		return nil, err
	}
	if err := parseWrite(rule, fields); err != nil {
		return nil, err
	}
	if raw, ok := fields["match"]; ok {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("sihd_core: rule: bad 'match' value %q: %w", raw, err)
		}
		rule.ShouldMatch = b
	}
	if raw, ok := fields["delay"]; ok {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("sihd_core: rule: bad 'delay' value %q: %w", raw, err)
		}
		rule.NanoDelay = int64(d * 1e9)
	}

	return rule, nil
}

func parseTrigger(rule *Rule, raw string) error {
	idxPart, valPart, hasColon := splitIdxValue(raw)
	if !hasColon {
		if valPart == "" {
			return fmt.Errorf("sihd_core: rule: trigger value empty: %q", raw)
		}
		val, err := sihd_util.ParseAnyValue(valPart)
		if err != nil {
			return fmt.Errorf("sihd_core: rule: trigger: %w", err)
		}
		rule.TriggerIdx = 0
		rule.TriggerValue = val
		rule.HasTriggerValue = true
		return nil
	}
	if idxPart == "" && valPart == "" {
		return fmt.Errorf("sihd_core: rule: trigger idx and value both empty: %q", raw)
	}
	if idxPart != "" {
		idx, err := strconv.Atoi(idxPart)
		if err != nil {
			return fmt.Errorf("sihd_core: rule: bad trigger idx %q: %w", idxPart, err)
		}
		rule.TriggerIdx = idx
	}
	if valPart != "" {
		val, err := sihd_util.ParseAnyValue(valPart)
		if err != nil {
			return fmt.Errorf("sihd_core: rule: trigger: %w", err)
		}
		rule.TriggerValue = val
		rule.HasTriggerValue = true
	}
	return nil
}

func parseWrite(rule *Rule, fields map[string]string) error {
	raw, ok := fields["write"]
	if !ok {
		rule.WriteIdx = rule.TriggerIdx
		rule.WriteSameValue = true
		return nil
	}
	idxPart, valPart, hasColon := splitIdxValue(raw)
	if !hasColon {
		if valPart == "" {
			return fmt.Errorf("sihd_core: rule: write value empty: %q", raw)
		}
		val, err := sihd_util.ParseAnyValue(valPart)
		if err != nil {
			return fmt.Errorf("sihd_core: rule: write: %w", err)
		}
		rule.WriteIdx = rule.TriggerIdx
		rule.WriteSameValue = false
		rule.WriteValue = val
		return nil
	}
	if idxPart == "" && valPart == "" {
		return fmt.Errorf("sihd_core: rule: write idx and value both empty: %q", raw)
	}
	if idxPart != "" {
		idx, err := strconv.Atoi(idxPart)
		if err != nil {
			return fmt.Errorf("sihd_core: rule: bad write idx %q: %w", idxPart, err)
		}
		rule.WriteIdx = idx
	} else {
		rule.WriteIdx = rule.TriggerIdx
	}
	rule.WriteSameValue = valPart == ""
	if !rule.WriteSameValue {
		val, err := sihd_util.ParseAnyValue(valPart)
		if err != nil {
			return fmt.Errorf("sihd_core: rule: write: %w", err)
		}
		rule.WriteValue = val
	}
	return nil
}

// String serialises the rule back into the ';'-separated form ParseRule
// accepts; always uses the explicit "idx:value" form for trigger/write so
// that ParseRule(rule.Op, rule.String()) round-trips exactly.
func (r *Rule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "in=%s;out=%s", r.InChannel, r.OutChannel)

	triggerVal := ""
	if r.HasTriggerValue {
		triggerVal = r.TriggerValue.String()
	}
	fmt.Fprintf(&b, ";trigger=%d:%s", r.TriggerIdx, triggerVal)

	writeVal := ""
	if !r.WriteSameValue {
		writeVal = r.WriteValue.String()
	}
	fmt.Fprintf(&b, ";write=%d:%s", r.WriteIdx, writeVal)

	fmt.Fprintf(&b, ";match=%t", r.ShouldMatch)
	fmt.Fprintf(&b, ";delay=%s", strconv.FormatFloat(float64(r.NanoDelay)/1e9, 'g', -1, 64))
	return b.String()
}

// boundRule binds a parsed Rule to its resolved input/output Channel
// pointers, the Go analogue of the original's InternalRule.
type boundRule struct {
	rule *Rule
	out  *Channel
}

// DevFilter applies a list of Rules to channel writes: on notification from
// a bound input channel, it evaluates every rule registered against that
// channel and conditionally writes to the rule's output channel, either
// immediately or after nano_delay via a child Scheduler.
type DevFilter struct {
	*Device

	rules []*Rule

	rulesByChannel map[*Channel][]*boundRule
	scheduler      *sihd_util.Scheduler
}

func NewDevFilter(name string, clock sihd_util.Clock) *DevFilter {
	f := &DevFilter{rulesByChannel: make(map[*Channel][]*boundRule)}
	f.Device = NewDevice(name, clock, DeviceHooks{
		OnInit:  f.onInit,
		OnStart: f.onStart,
		OnStop:  f.onStop,
		OnReset: f.onReset,
	})
	return f
}

// AddRule stores a pre-parsed rule for resolution at Start.
func (f *DevFilter) AddRule(rule *Rule) { f.rules = append(f.rules, rule) }

func (f *DevFilter) addParsed(op MatchOp, ruleStr string) error {
	rule, err := ParseRule(op, ruleStr)
	if err != nil {
		return err
	}
	f.AddRule(rule)
	return nil
}

func (f *DevFilter) AddEqualRule(ruleStr string) error   { return f.addParsed(MatchEqual, ruleStr) }
func (f *DevFilter) AddLessRule(ruleStr string) error    { return f.addParsed(MatchLess, ruleStr) }
func (f *DevFilter) AddLessEqRule(ruleStr string) error  { return f.addParsed(MatchLessEq, ruleStr) }
func (f *DevFilter) AddGreaterRule(ruleStr string) error { return f.addParsed(MatchGreater, ruleStr) }
func (f *DevFilter) AddGreaterEqRule(ruleStr string) error {
	return f.addParsed(MatchGreaterEq, ruleStr)
}
func (f *DevFilter) AddBitAndRule(ruleStr string) error { return f.addParsed(MatchBitAnd, ruleStr) }
func (f *DevFilter) AddBitOrRule(ruleStr string) error  { return f.addParsed(MatchBitOr, ruleStr) }
func (f *DevFilter) AddBitXorRule(ruleStr string) error { return f.addParsed(MatchBitXor, ruleStr) }

func (f *DevFilter) hasDelayedRule() bool {
	for _, r := range f.rules {
		if r.NanoDelay > 0 {
			return true
		}
	}
	return false
}

// onInit stands up a child Scheduler if any rule needs a delayed write,
// matching the original's "_scheduler_ptr created lazily in on_init".
func (f *DevFilter) onInit(d *Device) error {
	if !f.hasDelayedRule() {
		return nil
	}
	cfg := sihd_util.DefaultSchedulerConfig()
	cfg.StartSynchronised = true
	scheduler, err := sihd_util.NewScheduler(cfg)
	if err != nil {
		return err
	}
	if err := scheduler.Setup(); err != nil {
		return err
	}
	if err := scheduler.Init(); err != nil {
		return err
	}
	f.scheduler = scheduler
	return d.AddDevice(d.Name()+"-scheduler", schedulerNode{scheduler})
}

// schedulerNode adapts a *sihd_util.Scheduler (which has no Node of its
// own) into a Named child so it can be attached under the Device tree
// purely for discoverability; it participates in no further tree
// operations.
type schedulerNode struct{ *sihd_util.Scheduler }

func (schedulerNode) Name() string { return "scheduler" }

// onStart resolves every rule's channels, validates them and registers the
// filter as an observer of each unique input channel.
func (f *DevFilter) onStart(d *Device) error {
	for _, rule := range f.rules {
		chIn, err := d.FindChannel(rule.InChannel)
		if err != nil {
			return fmt.Errorf("sihd_core: devfilter %q: %w", d.Name(), err)
		}
		chOut, err := d.FindChannel(rule.OutChannel)
		if err != nil {
			return fmt.Errorf("sihd_core: devfilter %q: %w", d.Name(), err)
		}
		if err := validateRule(rule, chIn, chOut); err != nil {
			return fmt.Errorf("sihd_core: devfilter %q: %w", d.Name(), err)
		}
		if _, already := f.rulesByChannel[chIn]; !already {
			chIn.AddObserver(f)
		}
		f.rulesByChannel[chIn] = append(f.rulesByChannel[chIn], &boundRule{rule: rule, out: chOut})
	}
	if f.scheduler != nil {
		if err := f.scheduler.Start(); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(rule *Rule, chIn, chOut *Channel) error {
	if chIn == chOut {
		return fmt.Errorf("rule: input and output channel are the same (%q)", rule.InChannel)
	}
	if rule.TriggerIdx >= chIn.Len() {
		return fmt.Errorf("rule: trigger index %d >= input channel %q size %d", rule.TriggerIdx, rule.InChannel, chIn.Len())
	}
	if rule.WriteIdx >= chOut.Len() {
		return fmt.Errorf("rule: write index %d >= output channel %q size %d", rule.WriteIdx, rule.OutChannel, chOut.Len())
	}
	if rule.HasTriggerValue && rule.TriggerValue.Type.IsFloat() && !chIn.Type().IsFloat() {
		return fmt.Errorf("rule: trigger value is float but input channel %q is not", rule.InChannel)
	}
	writeIsFloat := (rule.WriteSameValue && rule.HasTriggerValue && rule.TriggerValue.Type.IsFloat()) ||
		(!rule.WriteSameValue && rule.WriteValue.Type.IsFloat())
	if writeIsFloat && !chOut.Type().IsFloat() {
		return fmt.Errorf("rule: write value is float but output channel %q is not", rule.OutChannel)
	}
	return nil
}

func (f *DevFilter) onStop(d *Device) error {
	if f.scheduler != nil {
		f.scheduler.Stop()
	}
	f.rulesByChannel = make(map[*Channel][]*boundRule)
	return nil
}

func (f *DevFilter) onReset(d *Device) error {
	f.rules = nil
	f.scheduler = nil
	return nil
}

// Handle implements Handler: it is invoked synchronously, on the writer's
// goroutine, for every write to a channel this filter observes.
func (f *DevFilter) Handle(ch *Channel) {
	bound, ok := f.rulesByChannel[ch]
	if !ok {
		return
	}
	for _, b := range bound {
		f.applyRule(ch, b)
	}
}

func (f *DevFilter) applyRule(chIn *Channel, b *boundRule) {
	rule := b.rule
	inVal, err := chIn.Read(rule.TriggerIdx)
	if err != nil {
		devFilterLog.Errorf("devfilter: read trigger index: %v", err)
		return
	}

	matched := !rule.HasTriggerValue || rule.Op.Evaluate(inVal, rule.TriggerValue)
	if matched != rule.ShouldMatch {
		return
	}

	outVal := inVal
	if !rule.WriteSameValue {
		outVal = rule.WriteValue
	}

	if rule.NanoDelay > 0 && f.scheduler != nil {
		out, writeIdx := b.out, rule.WriteIdx
		task := sihd_util.NewTask(fmt.Sprintf("%s-delay-%s:%d", f.Name(), out.Name(), writeIdx), func() bool {
			writeRuleOutput(out, writeIdx, outVal)
			return false
		})
		task.RunIn = rule.NanoDelay
		f.scheduler.AddTask(task)
		return
	}
	writeRuleOutput(b.out, rule.WriteIdx, outVal)
}

func writeRuleOutput(out *Channel, idx int, val sihd_util.Value) {
	if err := out.WriteAt(idx, val); err != nil {
		devFilterLog.Errorf("devfilter: write %q[%d]: %v", out.Name(), idx, err)
	}
}
