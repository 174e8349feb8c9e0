package api

import "biztrack/internal/core"

// Backend groups the resource clients that share one transport.
type Backend struct {
	Client     *Client
	Clients    *Resource[core.Client]
	Categories *Resource[core.Category]
	Vehicles   *Resource[core.Vehicle]
	Receipts   *Receipts
	Jobs       *Resource[core.Job]
	TripLogs   *Resource[core.TripLog]
	Users      *Users
}

func NewBackend(c *Client) *Backend {
	return &Backend{
		Client:     c,
		Clients:    NewResource[core.Client](c, ClientsEndpoint),
		Categories: NewResource[core.Category](c, CategoriesEndpoint),
		Vehicles:   NewResource[core.Vehicle](c, VehiclesEndpoint),
		Receipts:   NewReceipts(c),
		Jobs:       NewResource[core.Job](c, JobsEndpoint),
		TripLogs:   NewResource[core.TripLog](c, TripLogsEndpoint),
		Users:      NewUsers(c),
	}
}
