// Package influxdb is the optional live telemetry mirror.
//
// The authoritative record of a session is its SQLite file; InfluxDB
// only receives a copy of the capacitance stream, board connectivity
// and recording events so Grafana can watch a run without touching the
// session store. Losing the mirror never loses data, and a slow or
// absent server never stalls acquisition: writes are batched in memory
// and shipped asynchronously, with failed batches reported through an
// error callback.
//
// Wiring from the daemon:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) {
//	    log.Warn("influxdb write failed", "error", err)
//	})
//	client.WriteCapacitance(12, "board2", 512, reading.Timestamp)
//
// Batch size and flush interval come from the storage section of the
// configuration; the defaults suit the 50Hz sample cadence.
package influxdb
