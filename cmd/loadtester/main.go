// Command loadtester drives the leaderboard HTTP API: many concurrent
// "players" issuing score updates, plus a periodic monitor that samples
// a few customers' ranks and the top of the leaderboard.
package main

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

const (
	targetURL     = "http://localhost:8080"
	numCustomers  = 1000
	updateRateMS  = 50
	testDuration  = 3 * time.Minute
	monitorPeriod = 60 * time.Second
)

func main() {
	fmt.Printf("Starting load test: %d customers updating every %dms for %s\n", numCustomers, updateRateMS, testDuration)

	var wg sync.WaitGroup
	wg.Add(numCustomers)

	start := time.Now()
	var mu sync.Mutex
	requestCount := 0

	go monitor()

	for i := 1; i <= numCustomers; i++ {
		go func(customerID int64) {
			defer wg.Done()

			ticker := time.NewTicker(updateRateMS * time.Millisecond)
			defer ticker.Stop()
			deadline := time.After(testDuration)

			for {
				select {
				case <-deadline:
					return
				case <-ticker.C:
					delta := rand.Intn(201) - 100 // [-100, 100]
					updateScore(customerID, int64(delta))

					mu.Lock()
					requestCount++
					mu.Unlock()
				}
			}
		}(int64(i))
	}

	wg.Wait()
	elapsed := time.Since(start).Seconds()
	fmt.Printf("\nTest complete!\nTotal requests: %d\nTPS: %.2f\n", requestCount, float64(requestCount)/elapsed)
}

// monitor periodically checks a sample of customers and fetches a
// leaderboard page.
func monitor() {
	time.Sleep(10 * time.Second)
	ticker := time.NewTicker(monitorPeriod)
	defer ticker.Stop()

	for range ticker.C {
		fmt.Println("\n[monitor] sampling customers and top of leaderboard")
		for i := int64(1); i <= 5; i++ {
			checkCustomer(i)
		}
		fetchRange(1, 10)
	}
}

func updateScore(customerID, delta int64) {
	url := fmt.Sprintf("%s/customer/%d/score/%d", targetURL, customerID, delta)
	resp, err := http.Post(url, "application/octet-stream", nil)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
}

func checkCustomer(customerID int64) {
	url := fmt.Sprintf("%s/customer/%d", targetURL, customerID)
	resp, err := http.Get(url)
	if err != nil {
		fmt.Println("[monitor] error checking customer:", err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("[monitor] customer %d: %s\n", customerID, string(body))
}

func fetchRange(start, end int64) {
	url := fmt.Sprintf("%s/leaderboard?start=%d&end=%d", targetURL, start, end)
	resp, err := http.Get(url)
	if err != nil {
		fmt.Println("[monitor] error fetching leaderboard range:", err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("[monitor] top %d-%d: %s\n", start, end, string(body))
}
