// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

/*
Package api provides the HTTP surface of the Scrutineer server using the
Chi router.

Endpoints:

	GET  /api/v1/health                        liveness and pipeline state
	POST /api/v1/votes                         ingest one vote event
	GET  /api/v1/report                        current aggregate report
	GET  /api/v1/anomalies                     admitted anomalies, newest first
	GET  /api/v1/detection/rules               detector states and configs
	PUT  /api/v1/detection/rules/{kind}        reconfigure a detector
	POST /api/v1/detection/rules/{kind}/enable toggle a detector
	PUT  /api/v1/detection/thresholds/{name}   update a named threshold
	PUT  /api/v1/detection/windows/{name}      update a named time window
	GET  /api/v1/monitoring                    monitoring lifecycle state
	POST /api/v1/monitoring/start              enable ingestion
	POST /api/v1/monitoring/stop               disable ingestion
	POST /api/v1/admin/reset                   discard all election state
	GET  /ws                                   WebSocket live updates
	GET  /metrics                              Prometheus metrics

All JSON responses use a uniform envelope with status, data, and an
optional error block. Rejected votes distinguish validation failures
(422) from the stopped pipeline (409).

Middleware: request IDs, real IP extraction, panic recovery, CORS,
per-IP rate limiting, security headers, and Prometheus request metrics,
all from the Chi ecosystem.
*/
package api
