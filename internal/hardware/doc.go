// Package hardware drives the capacitive sensor rack: MPR121 touch
// controllers on FT232H I2C adapters, one controller per interface board.
//
// Each controller exposes twelve electrodes of which the odd-numbered six
// are wired to rack positions on the standard rack. A Board yields one
// Reading per wired position per poll. The Manager owns board lifecycle
// (connect, explicit reconnect, teardown) and publishes connectivity
// changes to a registered handler.
//
// Two backends implement Board:
//   - OpenI2C: real hardware via periph.io (host adapter, bus registry)
//   - OpenMock: synthetic signal generator for development without a rig
//
// The acquisition layer starts at most one read per board at a time but
// abandons reads that outlive its deadline, so a new Read can begin while a
// wedged one is still blocked in the driver; both backends serialise bus
// access internally. All Manager methods are safe for concurrent use.
//
// Usage:
//
//	mgr, err := hardware.NewManager(hardware.ManagerOptions{
//	    Configs: boardConfigs,
//	    Opener:  hardware.OpenMock,
//	    Logger:  logger,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := mgr.Connect(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Disconnect()
package hardware
