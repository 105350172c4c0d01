package outbox

const activityRecordedSchema = `{
  "type": "object",
  "title": "ActivityRecorded",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "course_id": {"type": "string"},
    "assignment_id": {"type": "string"},
    "kind": {"type": "string", "enum": ["planning", "worked_on", "completed"]},
    "duration_secs": {"type": "integer"},
    "recorded_at": {"type": "string", "format": "date-time"},
    "seq": {"type": "integer"}
  },
  "required": ["activity_id", "user_id", "course_id", "assignment_id", "kind", "duration_secs", "recorded_at", "seq"],
  "additionalProperties": false
}`

const statusUpdatedSchema = `{
  "type": "object",
  "title": "StatusUpdated",
  "properties": {
    "user_id": {"type": "string"},
    "planning_count": {"type": "integer"},
    "in_progress_count": {"type": "integer"},
    "completed_count": {"type": "integer"},
    "secs_worked": {"type": "integer"},
    "assignments_completed": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "planning_count", "in_progress_count", "completed_count", "secs_worked", "assignments_completed", "occurred_at"],
  "additionalProperties": false
}`
