package service

import (
	"context"
	"log"
	"time"
)

// Scheduler periodically exports one configured chat to the sheet sink.
// Each run writes a fresh tab, so runs are independent of each other.
type Scheduler struct {
	service   *ExportService
	chatID    string
	interval  time.Duration
	ticker    *time.Ticker
	stopChan  chan struct{}
	isRunning bool
}

func NewScheduler(service *ExportService, chatID string, interval time.Duration) *Scheduler {
	return &Scheduler{
		service:  service,
		chatID:   chatID,
		interval: interval,
	}
}

func (sch *Scheduler) Start() error {
	if sch.isRunning {
		log.Println("Export scheduler is already running.")
		return nil
	}
	sch.ticker = time.NewTicker(sch.interval)
	sch.stopChan = make(chan struct{})
	sch.isRunning = true
	go func() {
		log.Println("Export scheduler started.")
		for {
			select {
			case <-sch.stopChan:
				log.Println("Export scheduler stopping...")
				sch.ticker.Stop()
				sch.isRunning = false
				log.Println("Export scheduler stopped.")
				return
			case <-sch.ticker.C:
				result, err := sch.service.ExportToSheet(context.Background(), sch.chatID, nil)
				if err != nil {
					log.Printf("Scheduled export of chat %s failed: %v", sch.chatID, err)
					continue
				}
				if !result.Success {
					log.Printf("Scheduled export of chat %s failed: %s", sch.chatID, result.Error)
					continue
				}
				log.Printf("Scheduled export of chat %s wrote tab %s", sch.chatID, result.SheetName)
			}
		}
	}()
	return nil
}

func (sch *Scheduler) Stop() error {
	if !sch.isRunning {
		log.Println("Export scheduler is not running.")
		return nil
	}
	close(sch.stopChan)
	return nil
}

func (sch *Scheduler) IsRunning() bool {
	return sch.isRunning
}
