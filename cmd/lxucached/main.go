// lxucached is a TCP demonstration server exposing Transform/Evict/ForEach
// as line commands, for exercising an IDTransformer outside of a model
// runtime.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jamiealquiza/tachymeter"

	"github.com/jamiealquiza/lxucache"
)

// Request holds an API request command and parameters.
type Request struct {
	command string
	params  string
}

// commands is a map of valid API requests to internal functions.
var commands = map[string]func(xf *lxucache.IDTransformer, r *Request) string{
	"transform": transform,
	"evict":     evict,
	"list":      list,
}

// transformTachy collects transform-command timings between stats
// flushes.
var transformTachy = tachymeter.New(&tachymeter.Config{Size: 256, Safe: true})

func main() {
	address := flag.String("listen", "localhost:9090", "listen address")
	numEmbeddings := flag.Int64("num-embeddings", 1<<20, "total slot capacity")
	transformerType := flag.String("type", "naive", "id_transformer type: naive, cacheline, thread")
	numThreads := flag.Uint("num-threads", 4, "shard count when type=thread")
	underlying := flag.String("underlying", "naive", "underlying id_transformer type when type=thread")
	statsInterval := flag.Duration("stats-interval", 5*time.Second, "stats logging interval")
	flag.Parse()

	cfg := lxucache.Config{
		LXUStrategy: lxucache.StrategyConfig{Type: "mixed_lru_lfu"},
	}
	switch *transformerType {
	case "thread":
		threads := uint32(*numThreads)
		cfg.IDTransformer = lxucache.TransformerConfig{
			Type:       "thread",
			Underlying: &lxucache.TransformerConfig{Type: *underlying},
			NumThreads: &threads,
		}
	default:
		cfg.IDTransformer = lxucache.TransformerConfig{Type: *transformerType}
	}

	xf, err := lxucache.New(*numEmbeddings, cfg)
	if err != nil {
		log.Fatalln(err)
	}
	defer xf.Close()

	go statsLoop(xf, *statsInterval)

	server, err := net.Listen("tcp", *address)
	if err != nil {
		log.Fatalln(err)
	}
	defer server.Close()

	log.Printf("lxucached listening: %s\n", *address)

	for {
		conn, err := server.Accept()
		if err != nil {
			log.Printf("req error: %s\n", err)
			continue
		}
		reqHandler(xf, conn)
	}
}

// statsLoop logs occupancy and rolling transform-command latency on
// the configured interval.
func statsLoop(xf *lxucache.IDTransformer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		j, _ := json.Marshal(xf.Stats())
		log.Println(string(j))

		timing := transformTachy.Calc()
		if timing.Count > 0 {
			log.Printf("[lxucached Transform] cumulative: %s | min: %s | max: %s\n",
				timing.Time.Cumulative, timing.Time.Min, timing.Time.Max)
		}
		transformTachy.Reset()
	}
}

// reqHandler reads one newline-terminated command, dispatches it, and
// writes the response.
func reqHandler(xf *lxucache.IDTransformer, conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	buf, err := reader.ReadBytes('\n')
	if err != nil {
		return
	}
	input := buf[:len(buf)-1]

	var p int
	for n := range input {
		if input[n] == ' ' {
			p = n
			break
		}
	}
	if p == 0 {
		conn.Write([]byte("must specify command parameters\n"))
		return
	}

	request := &Request{
		command: string(input[:p]),
		params:  string(input[p+1:]),
	}

	if command, valid := commands[request.command]; valid {
		conn.Write([]byte(command(xf, request)))
	} else {
		conn.Write([]byte(fmt.Sprintf("non-existent command: %s\n", request.command)))
	}
}

// transform parses a comma-separated list of global IDs and the
// logical time (":"-separated from the list), admits them as a single
// batch, and reports the resulting slots.
func transform(xf *lxucache.IDTransformer, r *Request) string {
	parts := strings.SplitN(r.params, ":", 2)
	if len(parts) != 2 {
		return "usage: transform <g1,g2,...>:<logical_time>\n"
	}

	globals, err := parseInt64List(parts[0])
	if err != nil {
		return fmt.Sprintf("bad global id list: %s\n", err)
	}
	logicalTime, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "bad logical time\n"
	}

	slots := make([]int64, len(globals))
	start := time.Now()
	ok, toFetch, err := xf.Transform([][]int64{globals}, [][]int64{slots}, logicalTime)
	transformTachy.AddTime(time.Since(start))
	if err != nil {
		return fmt.Sprintf("error: %s\n", err)
	}

	b := bytes.NewBuffer(nil)
	fmt.Fprintf(b, "ok=%v slots=%v fetch=%d\n", ok, slots, len(toFetch))
	return b.String()
}

// evict requests k coldest global IDs be freed.
func evict(xf *lxucache.IDTransformer, r *Request) string {
	k, err := strconv.ParseInt(r.params, 10, 64)
	if err != nil {
		return "evict parameter must be an int\n"
	}

	pairs, err := xf.Evict(k)
	if err != nil {
		return fmt.Sprintf("error: %s\n", err)
	}

	b := bytes.NewBuffer(nil)
	for _, p := range pairs {
		fmt.Fprintf(b, "%d:%d\n", p[0], p[1])
	}
	return b.String()
}

// list enumerates every live (global, slot) pair, ignoring r.params.
func list(xf *lxucache.IDTransformer, _ *Request) string {
	b := bytes.NewBuffer(nil)
	xf.ForEachSlot(func(global, slot int64) {
		fmt.Fprintf(b, "%d:%d\n", global, slot)
	})
	return b.String()
}

func parseInt64List(s string) ([]int64, error) {
	fields := strings.Split(s, ",")
	out := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
