package kernel

import (
	"github.com/prometheus/client_golang/prometheus"

	"code.hybscloud.com/monokernel/internal/klog"
	"code.hybscloud.com/monokernel/ipc"
	"code.hybscloud.com/monokernel/ring"
	"code.hybscloud.com/monokernel/tagfs"
	"code.hybscloud.com/monokernel/task"
)

// Config sizes System's rings, routing table, and storage volume.
type Config struct {
	UserRingCapacity int
	DeckRingCapacity int
	RoutingTableSize int
	TagFSBlocks      uint32
	TagFSInodes      uint32
	SecurityPolicy   *SecurityPolicy
	Log              *klog.Logger
}

// DefaultConfig returns the sizes the teacher's own test suite and
// cmd/monokerneld use absent an override.
func DefaultConfig() Config {
	return Config{
		UserRingCapacity: 1024,
		DeckRingCapacity: 1024,
		RoutingTableSize: 256,
		TagFSBlocks:      16384,
		TagFSInodes:      4096,
	}
}

// System wires every pipeline stage — Receiver, Center, Guide, the four
// decks, Execution — and the subsystems they dispatch into (task, ipc,
// tagfs) into one runnable unit (§5).
type System struct {
	UserToKernel     *ring.SPSC[Event]
	KernelToUser     *ring.SPSC[Response]
	receiverToCenter *ring.SPSC[Event]

	table *RoutingTable

	receiver  *Receiver
	center    *Center
	guide     *Guide
	execution *Execution
	decks     [deckCount]*Deck

	storageDeck    *StorageDeck
	operationsDeck *OperationsDeck
	hardwareDeck   *HardwareDeck
	networkDeck    *NetworkDeck

	Scheduler *task.Scheduler
	Groups    *task.GroupTable
	IPC       *ipc.Bus
	FS        *tagfs.Store

	Metrics *Metrics
	log     *klog.Logger
}

// New builds a System from cfg, registering its metrics against reg.
func New(cfg Config, reg prometheus.Registerer) *System {
	log := cfg.Log
	if log == nil {
		log = klog.New(klog.DefaultConfig())
	}
	metrics := NewMetrics(reg)
	table := NewRoutingTable(cfg.RoutingTableSize)

	s := &System{
		UserToKernel:     ring.NewSPSC[Event](cfg.UserRingCapacity),
		KernelToUser:     ring.NewSPSC[Response](cfg.UserRingCapacity),
		receiverToCenter: ring.NewSPSC[Event](cfg.UserRingCapacity),
		table:            table,
		Scheduler:        task.NewScheduler(),
		Groups:           task.NewGroupTable(),
		IPC:              ipc.NewBus(),
		FS:               tagfs.New(cfg.TagFSBlocks, cfg.TagFSInodes),
		Metrics:          metrics,
		log:              log,
	}

	s.receiver = NewReceiver(s.UserToKernel, s.receiverToCenter, metrics, log)
	s.center = NewCenter(s.receiverToCenter, s.KernelToUser, table, cfg.SecurityPolicy, metrics, log)

	var deckQueues [deckCount]*ring.SPSCIndirect
	for i := DeckStorage; i < deckCount; i++ {
		deckQueues[i] = ring.NewSPSCIndirect(cfg.DeckRingCapacity)
	}
	executionQueue := ring.NewSPSCIndirect(cfg.DeckRingCapacity)

	s.guide = NewGuide(table, deckQueues, executionQueue, metrics, log)
	s.execution = NewExecution(executionQueue, s.KernelToUser, table, metrics, log)

	s.storageDeck = NewStorageDeck(s.FS)
	s.operationsDeck = NewOperationsDeck(s.Scheduler, s.Groups, s.IPC)
	s.hardwareDeck = NewHardwareDeck(s.Scheduler)
	s.networkDeck = NewNetworkDeck()

	s.decks[DeckStorage] = NewDeck(DeckStorage, deckQueues[DeckStorage], table, s.storageDeck.Process, metrics, log)
	s.decks[DeckOperations] = NewDeck(DeckOperations, deckQueues[DeckOperations], table, s.operationsDeck.Process, metrics, log)
	s.decks[DeckHardware] = NewDeck(DeckHardware, deckQueues[DeckHardware], table, s.hardwareDeck.Process, metrics, log)
	s.decks[DeckNetwork] = NewDeck(DeckNetwork, deckQueues[DeckNetwork], table, s.networkDeck.Process, metrics, log)

	return s
}

// ProcessOneIteration runs every pipeline stage's RunOnce once, in
// pipeline order, plus the Hardware deck's out-of-band timer sweep and
// the scheduler's sleep-expiry sweep. Returns whether any stage did
// work, so a caller can back off when the pipeline is idle.
func (s *System) ProcessOneIteration() bool {
	did := false
	did = s.receiver.RunOnce() || did
	did = s.center.RunOnce() || did
	did = s.guide.RunOnce() || did
	for i := DeckStorage; i < deckCount; i++ {
		did = s.decks[i].RunOnce() || did
	}
	did = s.execution.RunOnce() || did

	now := nowTSC()
	s.hardwareDeck.CheckExpired(now)
	s.Scheduler.WakeExpired(now)
	s.Scheduler.UpdateHealth(now)

	return did
}

// Run drives ProcessOneIteration until stop is closed, yielding briefly
// whenever an iteration did no work so an idle kernel doesn't spin a
// core at 100%.
func (s *System) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !s.ProcessOneIteration() {
			idleYield()
		}
	}
}
