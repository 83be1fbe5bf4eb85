package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/meenmo/fxlib/backsolve"
	"github.com/meenmo/fxlib/calendar"
	"github.com/meenmo/fxlib/config"
	"github.com/meenmo/fxlib/fxcurve"
	"github.com/meenmo/fxlib/logging"
	"github.com/meenmo/fxlib/market"
	"github.com/meenmo/fxlib/store"
	"github.com/meenmo/fxlib/utils"
)

type curveInput struct {
	TaskID     string     `json:"task_id,omitempty"`
	Pair       string     `json:"pair"`
	ValueDate  string     `json:"value_date"`
	Expiry     string     `json:"expiry"`
	SpotDate   string     `json:"spot_date,omitempty"`
	Settlement string     `json:"settlement,omitempty"`
	Spot       string     `json:"spot"`
	Rd         string     `json:"rd"`
	Rf         string     `json:"rf"`
	PipPlaces  *int32     `json:"pip_places,omitempty"`
	Solve      *solveJSON `json:"solve,omitempty"`
}

type solveJSON struct {
	// Target is "forward" or "swap".
	Target   string  `json:"target"`
	Mid      float64 `json:"mid"`
	LockMode string  `json:"lock_mode,omitempty"`
}

type sidedJSON struct {
	Bid float64 `json:"bid"`
	Mid float64 `json:"mid"`
	Ask float64 `json:"ask"`
}

type solvedJSON struct {
	Held   string  `json:"held"`
	Solved string  `json:"solved"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

type curveOutput struct {
	TaskID      string      `json:"task_id,omitempty"`
	Pair        string      `json:"pair,omitempty"`
	SpotDate    string      `json:"spot_date,omitempty"`
	Settlement  string      `json:"settlement,omitempty"`
	SettleDom   float64     `json:"t_settle_dom,omitempty"`
	SettleFor   float64     `json:"t_settle_for,omitempty"`
	DFDomExpiry *sidedJSON  `json:"df_dom_expiry,omitempty"`
	DFForExpiry *sidedJSON  `json:"df_for_expiry,omitempty"`
	Forward     *sidedJSON  `json:"forward,omitempty"`
	SwapPoints  *sidedJSON  `json:"swap_points,omitempty"`
	SwapPips    *sidedJSON  `json:"swap_pips,omitempty"`
	Solved      *solvedJSON `json:"solved,omitempty"`
	Error       string      `json:"error,omitempty"`
}

const usage = "Usage: fxfwd [-config <path>] -input <path>"

func main() {
	inputPath := flag.String("input", "", "JSON input path (reads stdin if omitted)")
	configPath := flag.String("config", "", "YAML or TOML config path (FXLIB_* env vars override)")
	help := flag.Bool("h", false, "Show help")
	flag.BoolVar(help, "help", false, "Show help")
	flag.Parse()

	if *help {
		fmt.Fprintln(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, "Compute FX forward curves and optionally back-solve a rate to a target forward or swap.")
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		exitError(fmt.Sprintf("load config: %v", err))
	}
	logger := newLogger(cfg.Logger)

	path := strings.TrimSpace(*inputPath)
	if path == "" {
		if stat, err := os.Stdin.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) != 0 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
	}

	raw, err := readInput(path)
	if err != nil {
		exitError(fmt.Sprintf("read input: %v", err))
	}

	inputs, isArray, err := parseInputs(raw)
	if err != nil {
		exitError(fmt.Sprintf("parse JSON: %v", err))
	}

	lags, _ := cfg.SpotLags()
	defaultMode, _ := cfg.LockMode()
	dates := calendar.NewDateSource(lags)

	hadError := false
	outputs := make([]curveOutput, 0, len(inputs))
	for _, in := range inputs {
		out, err := process(in, dates, defaultMode, logger)
		if err != nil {
			hadError = true
			logger.Warn("task failed", "task_id", in.TaskID, "error", err)
			outputs = append(outputs, curveOutput{TaskID: in.TaskID, Error: err.Error()})
			continue
		}
		outputs = append(outputs, *out)
	}

	if isArray {
		b, _ := json.Marshal(outputs)
		fmt.Println(string(b))
	} else {
		b, _ := json.Marshal(outputs[0])
		fmt.Println(string(b))
	}

	if hadError {
		os.Exit(1)
	}
}

// newLogger keeps stdout for JSON results.
func newLogger(cfg logging.Config) *slog.Logger {
	if strings.ToLower(cfg.Output) == "file" {
		if err := logging.Init(cfg); err == nil {
			return logging.Get()
		}
	}
	logger := logging.New(os.Stderr, cfg)
	slog.SetDefault(logger)
	return logger
}

func process(in curveInput, ds *calendar.DateSource, mode backsolve.LockMode, logger *slog.Logger) (*curveOutput, error) {
	pair, err := market.ParsePair(in.Pair)
	if err != nil {
		return nil, err
	}
	d, err := resolveDates(in, pair, ds)
	if err != nil {
		return nil, err
	}

	st, err := store.New(pair, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	leg := market.NewLegID()
	_, err = st.Batch(pair, store.OriginFeed, func(b *store.Batch) error {
		for _, q := range []struct {
			key  market.FieldKey
			text string
		}{
			{market.SpotKey(), in.Spot},
			{market.RdKey(leg), in.Rd},
			{market.RfKey(leg), in.Rf},
		} {
			v, isMid, err := market.ParseTwoWay(q.text)
			if err != nil {
				return fmt.Errorf("%s: %w", q.key.Name, err)
			}
			view := market.ViewTwoWay
			if isMid {
				view = market.ViewMid
			}
			if err := b.WriteFromFeed(q.key, v, false); err != nil {
				return err
			}
			if err := b.SetViewMode(q.key, view); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &curveOutput{TaskID: in.TaskID, Pair: string(pair)}
	var res fxcurve.Result
	if in.Solve != nil {
		if in.Solve.LockMode != "" {
			if mode, err = backsolve.ParseLockMode(in.Solve.LockMode); err != nil {
				return nil, err
			}
		}
		var target backsolve.Target
		switch strings.ToLower(in.Solve.Target) {
		case "", "forward":
			target = backsolve.Forward(in.Solve.Mid)
		case "swap":
			target = backsolve.Swap(in.Solve.Mid)
		default:
			return nil, fmt.Errorf("unsupported solve target %q (forward or swap)", in.Solve.Target)
		}
		o, err := backsolve.New(st, mode, backsolve.WithLogger(logger)).Solve(pair, leg, d, target)
		if err != nil {
			return nil, err
		}
		res = o.Curve
		out.Solved = &solvedJSON{Held: string(o.Held), Solved: string(o.Solved), Bid: o.Rate.Bid, Ask: o.Rate.Ask}
	} else {
		if res, err = fxcurve.FromSnapshot(st.Snapshot(), leg, d); err != nil {
			return nil, err
		}
	}

	places := int32(2)
	if in.PipPlaces != nil {
		places = *in.PipPlaces
	}
	out.SpotDate = d.SpotDate.Format(utils.DateLayout)
	out.Settlement = d.Settlement.Format(utils.DateLayout)
	out.SettleDom = res.Windows.SettleDom
	out.SettleFor = res.Windows.SettleFor
	out.DFDomExpiry = toJSON(res.DFDomExpiry)
	out.DFForExpiry = toJSON(res.DFForExpiry)
	out.Forward = toJSON(res.Forward)
	out.SwapPoints = toJSON(res.SwapPoints)
	out.SwapPips = toJSON(res.SwapPoints.Pips(pair, places))
	return out, nil
}

func resolveDates(in curveInput, pair market.Pair, ds *calendar.DateSource) (fxcurve.Dates, error) {
	var d fxcurve.Dates
	var err error
	if d.ValueDate, err = utils.ParseDate(in.ValueDate); err != nil {
		return d, fmt.Errorf("invalid value_date: %w", err)
	}
	if d.Expiry, err = utils.ParseDate(in.Expiry); err != nil {
		return d, fmt.Errorf("invalid expiry: %w", err)
	}
	sd, err := ds.Dates(pair, d.ValueDate, d.Expiry)
	if err != nil {
		return d, err
	}
	d.SpotDate, d.Settlement = sd.SpotDate, sd.Settlement
	if in.SpotDate != "" {
		if d.SpotDate, err = utils.ParseDate(in.SpotDate); err != nil {
			return d, fmt.Errorf("invalid spot_date: %w", err)
		}
	}
	if in.Settlement != "" {
		if d.Settlement, err = utils.ParseDate(in.Settlement); err != nil {
			return d, fmt.Errorf("invalid settlement: %w", err)
		}
	}
	return d, nil
}

func toJSON(s fxcurve.Sided) *sidedJSON {
	return &sidedJSON{Bid: s.Bid, Mid: s.Mid, Ask: s.Ask}
}

func readInput(path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	return io.ReadAll(os.Stdin)
}

func parseInputs(raw []byte) ([]curveInput, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty input")
	}
	if trimmed[0] == '[' {
		var inputs []curveInput
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			return nil, true, err
		}
		if len(inputs) == 0 {
			return nil, true, fmt.Errorf("empty input array")
		}
		return inputs, true, nil
	}
	var input curveInput
	if err := json.Unmarshal(trimmed, &input); err != nil {
		return nil, false, err
	}
	return []curveInput{input}, false, nil
}

func exitError(msg string) {
	b, _ := json.Marshal(curveOutput{Error: msg})
	fmt.Println(string(b))
	os.Exit(1)
}
