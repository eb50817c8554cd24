package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Email processing tick, every five minutes
	CronScheduleEmailProcessing string `env:"CRON_SCHEDULE_EMAIL_PROCESSING" envDefault:"0 */5 * * * *"`
}
