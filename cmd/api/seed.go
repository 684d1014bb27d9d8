package main

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	appconfig "github.com/clinicdesk/booking-engine/internal/config"
	"github.com/clinicdesk/booking-engine/internal/coupons"
	"github.com/clinicdesk/booking-engine/internal/slots"
)

type doctorSeed struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	FeeAmount    int64               `json:"feeAmount"`
	SlotMinutes  int                 `json:"slotMinutes"`
	WorkingHours map[string][]string `json:"workingHours"` // weekday name -> ["09:00-13:00", ...]
	DaysOff      []string            `json:"daysOff"`
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

// seedDoctors loads the doctor catalog from DOCTORS_FILE, falling back to a
// small demo roster outside production. The catalog is owned by the booking
// backend; this is a snapshot for the engine to price and schedule against.
func seedDoctors(cfg *appconfig.Config) []*slots.Doctor {
	if cfg.DoctorsFile != "" {
		if docs, err := loadDoctorsFile(cfg.DoctorsFile, cfg.SlotGranularity); err == nil {
			return docs
		}
	}
	if cfg.Env == "production" {
		return nil
	}
	weekdayHours := map[time.Weekday][]slots.Window{}
	for day := time.Monday; day <= time.Friday; day++ {
		weekdayHours[day] = []slots.Window{{Start: "09:00", End: "13:00"}, {Start: "14:00", End: "18:00"}}
	}
	return []*slots.Doctor{
		{
			ID:           "dr1",
			Name:         "Dr. Asha Rao",
			FeeAmount:    1200,
			SlotDuration: cfg.SlotGranularity,
			WorkingHours: weekdayHours,
		},
		{
			ID:           "dr2",
			Name:         "Dr. Vikram Shetty",
			FeeAmount:    1500,
			SlotDuration: cfg.SlotGranularity,
			WorkingHours: weekdayHours,
		},
	}
}

func loadDoctorsFile(path string, defaultDuration time.Duration) ([]*slots.Doctor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seeds []doctorSeed
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return nil, err
	}
	out := make([]*slots.Doctor, 0, len(seeds))
	for _, s := range seeds {
		doc := &slots.Doctor{
			ID:           s.ID,
			Name:         s.Name,
			FeeAmount:    s.FeeAmount,
			SlotDuration: defaultDuration,
			WorkingHours: map[time.Weekday][]slots.Window{},
			DaysOff:      s.DaysOff,
		}
		if s.SlotMinutes > 0 {
			doc.SlotDuration = time.Duration(s.SlotMinutes) * time.Minute
		}
		for day, ranges := range s.WorkingHours {
			wd, ok := weekdays[strings.ToLower(day)]
			if !ok {
				continue
			}
			for _, r := range ranges {
				parts := strings.SplitN(r, "-", 2)
				if len(parts) != 2 {
					continue
				}
				doc.WorkingHours[wd] = append(doc.WorkingHours[wd], slots.Window{Start: parts[0], End: parts[1]})
			}
		}
		out = append(out, doc)
	}
	return out, nil
}

// seedCoupons returns the launch coupon set. Coupon administration lives
// with the booking backend; codes here are the engine's working copy.
func seedCoupons() []*coupons.Coupon {
	return []*coupons.Coupon{
		{
			Code:        "WELCOME10",
			Type:        coupons.DiscountPercent,
			Value:       10,
			MaxDiscount: 500,
			ValidTo:     time.Now().AddDate(1, 0, 0),
		},
		{
			Code:      "FLAT200",
			Type:      coupons.DiscountFixed,
			Value:     200,
			MinAmount: 1000,
			ValidTo:   time.Now().AddDate(1, 0, 0),
		},
	}
}

func splitOrigins(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}
