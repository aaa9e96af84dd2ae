package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	postAndPrint(*baseURL, "/admin/v1/snapshot", nil, 10*time.Second)
}

// controlCmd drives the rewind and clock controls of a running server.
func controlCmd(op string, args []string) {
	fs := flag.NewFlagSet(op, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	tick := fs.Uint64("tick", 0, "target tick (rewind, scrub, playback)")
	speed := fs.Float64("x", 1, "speed multiplier (speed)")
	_ = fs.Parse(args)

	path, q, err := controlRequest(op, *tick, *speed)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	postAndPrint(*baseURL, path, q, 10*time.Second)
}

func controlRequest(op string, tick uint64, speed float64) (string, url.Values, error) {
	q := url.Values{}
	switch op {
	case "rewind", "scrub", "playback":
		q.Set("tick", fmt.Sprint(tick))
		return "/admin/v1/" + op, q, nil
	case "resume":
		return "/admin/v1/resume", q, nil
	case "pause":
		q.Set("paused", "true")
		return "/admin/v1/pause", q, nil
	case "unpause":
		q.Set("paused", "false")
		return "/admin/v1/pause", q, nil
	case "speed":
		q.Set("x", fmt.Sprint(speed))
		return "/admin/v1/speed", q, nil
	}
	return "", nil, fmt.Errorf("unknown control %q", op)
}

func postAndPrint(baseURL, path string, q url.Values, timeout time.Duration) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
