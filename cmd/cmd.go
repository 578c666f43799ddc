package cmd

import (
	"fmt"
	"runtime"

	"github.com/skytrace/copilot/cmd/common"
	"github.com/urfave/cli"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

// buildArgs is kept for commands that report the build, such as the daemon's
// RPC surface.
var buildArgs BuildArgs

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Usage: "path to the YAML config file (default $COPILOT_CONFIG or /etc/copilot/copilot.yaml)",
	},
}

func Execute(args []string, bArgs BuildArgs) error {
	buildArgs = bArgs
	app := cli.App{
		Name:                  "copilot",
		HelpName:              "copilot",
		Usage:                 "GPS-synchronized slot telemetry scheduler.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "copilot [--config file] <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Flags:                 globalFlags,
		Commands: []cli.Command{
			{
				Name:               "daemon",
				Usage:              "run the scheduler",
				Description:        DaemonDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             daemon,
			},
			{
				Name:               "test.sched",
				Usage:              "run the window schedule scenarios",
				Description:        TestSchedDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             testSched,
			},
			{
				Name:               "test.cfg",
				Usage:              "run test suite for slot behavior",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             testCfg,
			},
			{
				Name:               "test.calc",
				Usage:              "run test suite for window start time",
				UsageText:          "test.calc [fullSweep=0]",
				Description:        TestCalcDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             testCalc,
			},
			{
				Name:               "test.gps",
				Usage:              "test gps lock",
				Description:        TestGpsDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             testGps,
			},
			{
				Name:        "slot",
				Usage:       "inspect and edit slot scripts and message definitions",
				Description: SlotDescription,
				Subcommands: []cli.Command{
					{
						Name:               "get",
						Usage:              "print a slot's script or message definition",
						UsageText:          "slot get [--def] <slot>",
						CustomHelpTemplate: CMD_HELP_TEMPL,
						OnUsageError:       common.UsageErrorCallback,
						Flags:              slotFlags,
						Action:             slotGet,
					},
					{
						Name:               "set",
						Usage:              "store a slot's script or message definition from a file",
						UsageText:          "slot set [--def] <slot> <file>",
						CustomHelpTemplate: CMD_HELP_TEMPL,
						OnUsageError:       common.UsageErrorCallback,
						Flags:              slotFlags,
						Action:             slotSet,
					},
					{
						Name:               "parse",
						Usage:              "syntax check a script file",
						UsageText:          "slot parse <file>",
						CustomHelpTemplate: CMD_HELP_TEMPL,
						OnUsageError:       common.UsageErrorCallback,
						Action:             slotParse,
					},
					{
						Name:               "show",
						Usage:              "run a slot's script once and print the message it builds",
						UsageText:          "slot show <slot>",
						CustomHelpTemplate: CMD_HELP_TEMPL,
						OnUsageError:       common.UsageErrorCallback,
						Action:             slotShow,
					},
				},
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of copilot",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		HideHelp:    true,
		HideVersion: true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
