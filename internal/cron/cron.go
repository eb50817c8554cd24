package cron

import (
	"context"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/imsportal/filingstack/interfaces"
	cron_config "github.com/imsportal/filingstack/internal/cron/config"
	"github.com/imsportal/filingstack/internal/logger"
	"github.com/imsportal/filingstack/internal/tracing"
)

// CONSTANTS
const (
	// GroupEmailProcessing is the group for jobs that read mailboxes
	GroupEmailProcessing = "email_processing"

	// LeaseName is the Lease object replicas compete for
	LeaseName = "filingstack-cron-leader"
	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupEmailProcessing: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg       cron_config.Config
	log       logger.Logger
	k8s       kubernetes.Interface
	localMode bool
	podName   string
	stopCh    chan struct{}
	stopOnce  sync.Once
	jobIDs    map[string]cronv3.EntryID
	processor interfaces.EmailProcessor

	// guards cron and jobIDs, which the leader callbacks touch from the
	// election goroutine
	mu   sync.Mutex
	cron *cronv3.Cron

	// cancelled when the manager stops so a running tick ends after its
	// current message
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCronManager(cfg cron_config.Config, log logger.Logger, k8s kubernetes.Interface, localMode bool, processor interfaces.EmailProcessor) *CronManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &CronManager{
		cfg:       cfg,
		log:       log,
		k8s:       k8s,
		localMode: localMode,
		stopCh:    make(chan struct{}),
		jobIDs:    make(map[string]cronv3.EntryID),
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	cm.podName = podName
	if cm.k8s == nil || cm.localMode {
		cm.log.Info("Starting cron manager in local mode")
		return cm.StartCron()
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      LeaseName,
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					if err := cm.StartCron(); err != nil {
						cm.log.Errorf("Could not start crons after winning leadership: %v", err)
					}
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		le.Run(cm.ctx)
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		return cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop cancels running jobs and waits for them to return.
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		cm.mu.Lock()
		cm.cancel()
		c := cm.cron
		cm.mu.Unlock()

		if c != nil {
			cm.log.Info("Stopping cron manager")
			ctx := c.Stop()
			<-ctx.Done()
		}
		close(cm.stopCh)
	})
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron, podName string) error {
	if cm.cfg.CronScheduleHeartbeat != "" {
		id, err := c.AddFunc(cm.cfg.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			return err
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cm.cfg.CronScheduleHeartbeat)
	}

	if cm.cfg.CronScheduleEmailProcessing != "" && cm.processor != nil {
		id, err := c.AddFunc(cm.cfg.CronScheduleEmailProcessing, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupEmailProcessing].Lock()
			defer jobLocks.locks[GroupEmailProcessing].Unlock()
			cm.processEmails()
		})
		if err != nil {
			return err
		}
		cm.jobIDs["email_processing"] = id
		cm.log.Infof("Registered email processing job with schedule: %s", cm.cfg.CronScheduleEmailProcessing)
	}

	return nil
}

// StartCron initializes and starts the cron scheduler. It is a no-op when
// the scheduler already runs or the manager was stopped.
func (cm *CronManager) StartCron() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.cron != nil || cm.ctx.Err() != nil {
		return nil
	}

	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	if err := cm.registerJobs(c, cm.podNameOrLocal()); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

func (cm *CronManager) podNameOrLocal() string {
	if cm.podName != "" {
		return cm.podName
	}
	return "local"
}

func (cm *CronManager) processEmails() {
	span, ctx := tracing.StartTracerSpan(cm.ctx, "CronManager.processEmails")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	summary, err := cm.processor.Tick(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Email processing tick failed: %v", err)
		return
	}
	if summary == nil {
		return
	}

	processed, failedSources := 0, 0
	for _, source := range summary.Sources {
		for _, count := range source.Outcomes {
			processed += count
		}
		if source.Error != "" {
			failedSources++
		}
	}
	span.SetTag("result.processed", processed)
	cm.log.Infof("Email processing tick finished: %d sources, %d messages processed, %d sources failed",
		len(summary.Sources), processed, failedSources)
}
