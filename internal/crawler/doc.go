// Package crawler defines the station, measurement and provider types shared by
// the bootstrapper, the per-station workers and the supervisor, together with
// the collaborator interfaces they are wired through.
package crawler
