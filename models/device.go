package models

import (
	"time"
)

// DeviceStatus is the display status of a device or plant
type DeviceStatus string

const (
	StatusOnline      DeviceStatus = "online"
	StatusOffline     DeviceStatus = "offline"
	StatusMaintenance DeviceStatus = "maintenance"
	StatusReplaced    DeviceStatus = "replaced"
)

// Device is a monitored unit as stored in the document store.
// Status is derived on every read and never written back.
type Device struct {
	ID             string       `json:"id" firestore:"-"`
	Name           string       `json:"name" firestore:"name"`
	DeviceType     string       `json:"device_type,omitempty" firestore:"deviceType"`
	Location       string       `json:"location" firestore:"location"`
	ClientID       string       `json:"client_id,omitempty" firestore:"clientId"`
	ReportedStatus DeviceStatus `json:"reported_status,omitempty" firestore:"status"`
	Status         DeviceStatus `json:"status" firestore:"-"`
	LastSeen       time.Time    `json:"last_seen" firestore:"lastSeen"`
	PlantCapacity  float64      `json:"plant_capacity,omitempty" firestore:"plantCapacity"`
}

// PlantType is the coarse kind of treatment plant
type PlantType string

const (
	PlantSTP   PlantType = "STP"
	PlantWTP   PlantType = "WTP"
	PlantCEMS  PlantType = "CEMS"
	PlantOther PlantType = "OTHER"
)

// Plant groups the devices sharing a location
type Plant struct {
	Location    string       `json:"location"`
	Type        PlantType    `json:"type"`
	DeviceCount int          `json:"device_count"`
	Status      DeviceStatus `json:"status"`
	DeviceIDs   []string     `json:"device_ids"`
}
