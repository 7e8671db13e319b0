package config

import (
	"os"
	"strconv"
)

const DATABASE_TYPE = "CONVEYOR_DATABASE_TYPE"
const DATABASE_URL = "CONVEYOR_DATABASE_URL"
const DATABASE_SQLLITE_FILE_NAME = "CONVEYOR_DATABASE_SQLLITE_FILE_NAME"
const ENGINE_SERVER_WEB_PORT = "CONVEYOR_ENGINE_SERVER_WEB_PORT"
const ENGINE_CHECK_DB_INTERVAL = "CONVEYOR_ENGINE_CHECK_DB_INTERVAL"
const ENGINE_STUCK_BUILDS_INTERVAL = "CONVEYOR_ENGINE_STUCK_BUILDS_INTERVAL"
const ENGINE_STUCK_BUILDS_REPAIR_AFTER_MINUTES = "CONVEYOR_ENGINE_STUCK_BUILDS_REPAIR_AFTER_MINUTES"
const ENGINE_BATCH_SIZE = "CONVEYOR_ENGINE_BATCH_SIZE"     //number of builds to pull from the database at a time
const ENGINE_RUNNER_GROUP = "CONVEYOR_ENGINE_RUNNER_GROUP" //the group of builds this runner process will pick up
const ENGINE_RUNNER_SIZE = "CONVEYOR_ENGINE_RUNNER_SIZE"   //number of workers to run ie the parallel nature of the builds
const WEB_SESSION_EXPIRY_HOURS = "CONVEYOR_WEB_SESSION_EXPIRY_HOURS"
const PIPELINES_DIR = "CONVEYOR_PIPELINES_DIR"
const WORKSPACE_ROOT = "CONVEYOR_WORKSPACE_ROOT"
const CLONE_DEPTH = "CONVEYOR_CLONE_DEPTH"
const STEP_OUTPUT_LIMIT_KB = "CONVEYOR_STEP_OUTPUT_LIMIT_KB"
const KEEP_WORKSPACES = "CONVEYOR_KEEP_WORKSPACES" //ALWAYS, NEVER or ON_FAILURE
const HOOK_SHARED_SECRET = "CONVEYOR_HOOK_SHARED_SECRET"
const RUNNER_NAME = "CONVEYOR_RUNNER_NAME"

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLLITE = "SQLLITE"

const KEEP_WORKSPACES_ALWAYS = "ALWAYS"
const KEEP_WORKSPACES_NEVER = "NEVER"
const KEEP_WORKSPACES_ON_FAILURE = "ON_FAILURE"

func GetSystemSettingInteger(settingKey string) int {
	val := GetSystemSettingString(settingKey)
	if val != "" {
		intValue, _ := strconv.Atoi(val)
		return intValue
	}

	return 0
}

func GetSystemSettingString(settingKey string) string {
	val := os.Getenv(settingKey)
	if val != "" {
		return val
	}
	if settingKey == ENGINE_CHECK_DB_INTERVAL {
		return "3s"
	}
	if settingKey == ENGINE_STUCK_BUILDS_INTERVAL {
		return "60s"
	}
	if settingKey == ENGINE_BATCH_SIZE {
		return "5"
	}
	if settingKey == ENGINE_STUCK_BUILDS_REPAIR_AFTER_MINUTES {
		return "10" // default to 10 minutes, builds can legitimately run for a while
	}
	if settingKey == ENGINE_RUNNER_SIZE {
		return "3"
	}
	if settingKey == ENGINE_RUNNER_GROUP {
		return "default"
	}
	if settingKey == ENGINE_SERVER_WEB_PORT {
		return "8080"
	}
	if settingKey == WEB_SESSION_EXPIRY_HOURS {
		return "1"
	}
	if settingKey == DATABASE_SQLLITE_FILE_NAME {
		return "./conveyor.db"
	}
	if settingKey == PIPELINES_DIR {
		return "./pipelines"
	}
	if settingKey == WORKSPACE_ROOT {
		return "./workspaces"
	}
	if settingKey == CLONE_DEPTH {
		return "1"
	}
	if settingKey == STEP_OUTPUT_LIMIT_KB {
		return "256"
	}
	if settingKey == KEEP_WORKSPACES {
		return KEEP_WORKSPACES_ON_FAILURE
	}
	return ""
}
