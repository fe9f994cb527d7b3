package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentCatalogKey returns the cache key for the exam catalog offered to a student
func (r *CacheKeyStruct) StudentCatalogKey(studentID int) string {
	return fmt.Sprintf("student:%d:catalog", studentID)
}

// QuestionSetKey returns the cache key for the question set of an exam's mock form.
// An empty mock test code addresses the exam's default form.
func (r *CacheKeyStruct) QuestionSetKey(examCode, mockTestCode string) string {
	if mockTestCode == "" {
		mockTestCode = "default"
	}
	return fmt.Sprintf("exam:%s:mock:%s:questions", examCode, mockTestCode)
}

// StudentActiveExamKey returns the cache key for a student's currently active exam
func (r *CacheKeyStruct) StudentActiveExamKey(studentID int) string {
	return fmt.Sprintf("student:%d:active_exam", studentID)
}

// RateLimitKey returns the counter key of a student's request window
func (r *CacheKeyStruct) RateLimitKey(studentID int, window int64) string {
	return fmt.Sprintf("ratelimit:student:%d:%d", studentID, window)
}

var CacheKey = NewCacheKeyStruct()
