package main

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"wastewatch/config"
	"wastewatch/log"
	"wastewatch/services"

	"go.uber.org/zap"
)

var (
	deviceID = flag.String("device", "", "Only show this device")
	capacity = flag.Float64("capacity", 0, "Plant capacity used for the flow band (0 uses PLANT_CAPACITY)")
)

func main() {
	flag.Parse()

	logger := log.GetInstance()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.FirebaseDbUrl == "" || cfg.FirebaseServiceAccountJSON == "" {
		logger.Fatal("FIREBASE_DB_URL and FIREBASE_SERVICE_ACCOUNT_JSON must be set")
	}

	ranges, err := services.LoadRanges(cfg.RangesFile)
	if err != nil {
		logger.Fatal("Failed to load range table", zap.Error(err))
	}

	ctx := context.Background()
	firebaseService, err := services.NewFirebaseService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Firebase service", zap.Error(err))
	}
	defer firebaseService.Close()

	devices, err := firebaseService.ListDevices(ctx)
	if err != nil {
		logger.Fatal("Failed to list devices", zap.Error(err))
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

	capacities := services.NewCapacityStore(cfg.PlantCapacity)
	evaluator := services.NewEvaluator(ranges)

	fmt.Printf("Data root: %s\n", firebaseService.Root())
	fmt.Printf("Devices found: %d\n\n", len(devices))

	for _, device := range devices {
		if *deviceID != "" && device.ID != *deviceID {
			continue
		}

		snapshot, err := firebaseService.GetLatestSnapshot(ctx, device.ID)
		if err != nil {
			fmt.Printf("%s (%s): no readings\n---\n", device.ID, services.PlantLocation(device))
			continue
		}

		plantCapacity := *capacity
		if plantCapacity <= 0 {
			plantCapacity = capacities.For(device)
		}
		eval := evaluator.Evaluate(snapshot, plantCapacity)

		fmt.Printf("%s (%s, %s)\n", device.ID, services.PlantLocation(device), services.ClassifyPlantType(device))
		fmt.Printf("Time: %s  Severity: %s  Faults: %d\n", snapshot.Timestamp.Format("2006-01-02 15:04:05"), eval.Severity, len(eval.Faults))
		for _, fault := range eval.Faults {
			fmt.Printf("  %s %s\n", fault.GetFaultEmoji(), fault.Message)
		}
		for _, dose := range services.SuggestDosage(snapshot, plantCapacity) {
			fmt.Printf("  dose %s: %.2f mg/L (%.2f kg/day)\n", dose.Chemical, dose.DoseMgL, dose.KgPerDay)
		}
		fmt.Println("---")
	}
}
