package cmd

const DESCRIPTION = `
copilot schedules a ten-minute telemetry window around every GPS lock.
Each window has five slots; a slot runs its script and sends either the
message the script built, a default telemetry message or nothing.
`

const (
	DaemonDescription = `The daemon command loads the config, requests a GPS lock
and schedules windows until interrupted. JSON-RPC, the
WebSocket mark feed and metrics are served on rpc.listen.

Example:
        copilot --config /etc/copilot/copilot.yaml daemon

`
	TestSchedDescription = `The test.sched command runs windows A to D on virtual time
with the real script engine. Slot files are moved aside
during the run and restored afterwards.

Example:
        copilot test.sched

`
	TestCalcDescription = `The test.calc command checks the window start calculation
for every start minute. With fullSweep=1 every second of
an hour is checked, otherwise a handful of edges.

Example:
        copilot test.calc 1

`
	TestGpsDescription = `The test.gps command delivers the lock 2025-01-01 12:09:50.000
with start minute 0 and runs the following window on
virtual time using the stored slots.

Example:
        copilot test.gps

`
	SlotDescription = `The slot commands read and write slot1..slot5 in store.dir.
--def selects the message definition instead of the script.

Example:
        copilot slot set slot2 ./slot2.js
        copilot slot set --def slot2 ./slot2.json
        copilot slot show slot2

`
)
