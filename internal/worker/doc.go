// Package worker hosts the background tasks: the fire-and-forget campaign
// dispatcher, the periodic reminder queue processor, and the
// scheduled-campaign sweeper. Each worker is independent; none blocks an
// HTTP request.
package worker
