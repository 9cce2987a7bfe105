// Package main hosts the stationcrawler entrypoint.
//
// Architecture overview:
//   - Bootstrap: internal/bootstrap resolves every configured (city, country) pair through the
//     OpenWeatherMap geocoding API, retrying with a linearly growing delay, and records the station
//     in the store. Any failure aborts startup before polling begins.
//   - Workers: internal/supervisor starts one internal/worker.Worker per station. Each worker runs
//     an explicit Polling/Backoff/Fatal state machine, deduplicates measurements against a
//     watermark seeded from the store, and stops permanently on a 401.
//   - Persistence: stations and measurements go to the memory, SQLite or Postgres store selected by
//     store.driver. Every store is safe for concurrent use by all workers.
//   - Observability: zap logs, Prometheus histograms and gauges served on /metrics by a chi router
//     started once per process, OpenTelemetry spans per bootstrap and per polling cycle, and an
//     optional Pub/Sub notification for every stored measurement.
//
// Quick checklist:
//   - Configure CRAWLER_PROVIDER_API_KEY (a .env file works) and stations via config file or
//     stations_file.
//   - Run: stationcrawler run --config config.yaml; list stations: stationcrawler stations.
//   - SIGINT/SIGTERM cancels every worker; the process exits non-zero when bootstrap fails or a
//     worker ended with an error.
package main

import (
	"github.com/JakeFAU/weather-station-crawler/cmd"
)

func main() {
	cmd.Execute()
}
