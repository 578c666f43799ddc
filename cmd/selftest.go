package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/skytrace/copilot/cmd/common"
	"github.com/skytrace/copilot/internal/copilot"
	"github.com/skytrace/copilot/internal/subsystem"
	"github.com/urfave/cli"
)

func suiteErr(suite string, failed, total int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d of %d failed", suite, failed, total)
}

func testCfg(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "test.cfg", "load_config", err)
		return err
	}
	results := copilot.RunBehaviorSuite(newLogger(cfg))
	return suiteErr("behavior", common.PrintResults(stdout, "behavior", results), len(results))
}

func testCalc(ctx *cli.Context) error {
	fullSweep := false
	if arg := ctx.Args().First(); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return common.PrintErrWithCmdHelp(ctx, fmt.Errorf("fullSweep must be 0 or 1: %w", err))
		}
		fullSweep = n != 0
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "test.calc", "load_config", err)
		return err
	}
	results := copilot.RunCalcSuite(newLogger(cfg), fullSweep)
	return suiteErr("calc", common.PrintResults(stdout, "calc", results), len(results))
}

func testSched(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "test.sched", "load_config", err)
		return err
	}
	l := newLogger(cfg)
	store, engine, err := openStore(cfg, l)
	if err != nil {
		common.PrintRuntimeErr(ctx, "test.sched", "open_store", err)
		return err
	}
	results, err := subsystem.SelfTest(store, engine, l)
	if err != nil {
		common.PrintRuntimeErr(ctx, "test.sched", "self_test", err)
		if results == nil {
			return err
		}
	}
	return suiteErr("schedule", common.PrintResults(stdout, "schedule", results), len(results))
}

func testGps(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "test.gps", "load_config", err)
		return err
	}
	l := newLogger(cfg)
	store, engine, err := openStore(cfg, l)
	if err != nil {
		common.PrintRuntimeErr(ctx, "test.gps", "open_store", err)
		return err
	}
	report, err := subsystem.GpsTest(store, engine, l)
	if err != nil {
		common.PrintRuntimeErr(ctx, "test.gps", "run_window", err)
		return err
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}
