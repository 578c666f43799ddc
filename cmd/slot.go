package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/skytrace/copilot/cmd/common"
	"github.com/skytrace/copilot/internal/copilot"
	"github.com/skytrace/copilot/internal/gps"
	"github.com/skytrace/copilot/internal/jsengine"
	"github.com/skytrace/copilot/internal/slotstore"
	"github.com/urfave/cli"
)

var slotFlags = []cli.Flag{
	cli.BoolFlag{
		Name:  "def, d",
		Usage: "use the message definition (slotN.json) instead of the script",
	},
}

var errMissingArgs = errors.New("missing arguments")

func slotArg(ctx *cli.Context, n int) ([]string, error) {
	if ctx.NArg() < n {
		return nil, errMissingArgs
	}
	args := ctx.Args()[:n]
	if err := slotstore.CheckSlot(args[0]); err != nil {
		return nil, err
	}
	return args, nil
}

func slotGet(ctx *cli.Context) error {
	args, err := slotArg(ctx, 1)
	if err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "slot get", "load_config", err)
		return err
	}
	store, _, err := openStore(cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	var src string
	if ctx.Bool("def") {
		src, err = store.GetMsgDef(args[0])
	} else {
		src, err = store.GetScript(args[0])
	}
	if err != nil {
		common.PrintRuntimeErr(ctx, "slot get", "read", err)
		return err
	}
	fmt.Fprint(stdout, src)
	return nil
}

func slotSet(ctx *cli.Context) error {
	args, err := slotArg(ctx, 2)
	if err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}
	body, err := os.ReadFile(args[1])
	if err != nil {
		common.PrintRuntimeErr(ctx, "slot set", "read_file", err)
		return err
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "slot set", "load_config", err)
		return err
	}
	store, _, err := openStore(cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	if ctx.Bool("def") {
		err = store.SetMsgDef(args[0], string(body))
	} else {
		if res := jsengine.Parse(string(body)); !res.Ok {
			err = fmt.Errorf("parse: %s", res.Err)
		} else {
			err = store.SetScript(args[0], string(body))
		}
	}
	if err != nil {
		common.PrintRuntimeErr(ctx, "slot set", "store", err)
		return err
	}
	fmt.Fprintf(stdout, "%s: stored %d bytes\n", args[0], len(body))
	return nil
}

func slotParse(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return common.PrintErrWithCmdHelp(ctx, errMissingArgs)
	}
	body, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		common.PrintRuntimeErr(ctx, "slot parse", "read_file", err)
		return err
	}
	res := jsengine.Parse(string(body))
	if !res.Ok {
		fmt.Fprintf(stdout, "parse failed in %d ms: %s\n", res.ParseMs, res.Err)
		return errors.New("parse failed")
	}
	fmt.Fprintf(stdout, "ok (%d ms)\n", res.ParseMs)
	return nil
}

// slotShow runs the slot's script against the self-test fix and prints the
// message it built.
func slotShow(ctx *cli.Context) error {
	args, err := slotArg(ctx, 1)
	if err != nil {
		return common.PrintErrWithCmdHelp(ctx, err)
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		common.PrintRuntimeErr(ctx, "slot show", "load_config", err)
		return err
	}
	store, engine, err := openStore(cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	slot := args[0]
	fix, err := gps.ParseDateTime(copilot.SelfTestFix, gps.Quality3DPlus)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s: definition=%v usesGps=%v usesMsg=%v\n",
		slot, store.HasDefinition(slot), engine.UsesGpsApi(slot), engine.UsesMessageApi(slot))
	runErr := engine.Exec(slot, fix)
	if msg, ok := engine.LastMessage(slot); ok && len(msg.Def().Fields) > 0 {
		fmt.Fprintln(stdout, msg.State())
	}
	if runErr != nil {
		common.PrintRuntimeErr(ctx, "slot show", "run", runErr)
		return runErr
	}
	return nil
}
