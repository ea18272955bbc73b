package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsFunding      int64
	errorsLiquidation  int64
	warnsFunding       int64
	warnsLiquidation   int64
	fundingUpdates     int64
	liquidationEvents  int64
	snapshotsPersisted int64
	channels           sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "liq") {
		atomic.AddInt64(&warnsLiquidation, 1)
	} else if strings.Contains(component, "funding") || strings.Contains(component, "scheduler") || strings.Contains(component, "stream") {
		atomic.AddInt64(&warnsFunding, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "liq") {
		atomic.AddInt64(&errorsLiquidation, 1)
	} else if strings.Contains(component, "funding") || strings.Contains(component, "scheduler") || strings.Contains(component, "stream") {
		atomic.AddInt64(&errorsFunding, 1)
	}
}

// IncrementFundingUpdate records one applied funding rate update.
func IncrementFundingUpdate(size int) {
	atomic.AddInt64(&fundingUpdates, 1)
	recordChannel("funding_ws", size)
}

// IncrementLiquidationEvent records one qualifying liquidation event.
func IncrementLiquidationEvent(size int) {
	atomic.AddInt64(&liquidationEvents, 1)
	recordChannel("liquidation_ws", size)
}

// IncrementSnapshotPersisted records one funding snapshot row written.
func IncrementSnapshotPersisted(size int) {
	atomic.AddInt64(&snapshotsPersisted, 1)
	recordChannel("funding_csv", size)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and channel statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_funding":      atomic.LoadInt64(&errorsFunding),
		"errors_liquidation":  atomic.LoadInt64(&errorsLiquidation),
		"warns_funding":       atomic.LoadInt64(&warnsFunding),
		"warns_liquidation":   atomic.LoadInt64(&warnsLiquidation),
		"funding_updates":     atomic.LoadInt64(&fundingUpdates),
		"liquidation_events":  atomic.LoadInt64(&liquidationEvents),
		"snapshots_persisted": atomic.LoadInt64(&snapshotsPersisted),
		"goroutines":          runtime.NumGoroutine(),
		"cpu_percent":         cpuPct,
		"memory_mb":           int64(memStats.Used) / 1024 / 1024,
		"disk_mb":             int64(diskStats.Used) / 1024 / 1024,
		"channels":            channelData,
		"net_bytes_sent":      int64(bytesSent),
		"net_bytes_recv":      int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsFunding"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsFunding)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsLiquidation"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsLiquidation)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsFunding"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnsFunding)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsLiquidation"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnsLiquidation)))},
		cwtypes.MetricDatum{MetricName: aws.String("FundingUpdates"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&fundingUpdates)))},
		cwtypes.MetricDatum{MetricName: aws.String("LiquidationEvents"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&liquidationEvents)))},
		cwtypes.MetricDatum{MetricName: aws.String("SnapshotsPersisted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&snapshotsPersisted)))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
