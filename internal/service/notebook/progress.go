package notebook

import (
	"regexp"
	"strconv"
	"strings"

	"hue-gateway/internal/domain"
)

var (
	hiveTotalJobsRe      = regexp.MustCompile(`Total jobs = (\d+)`)
	impalaCompleteRe     = regexp.MustCompile(`(\d+)% Complete`)
	hadoopJobStartedRe   = regexp.MustCompile(`Starting Job = (job_[0-9_]+), Tracking URL = (\S+)`)
	hadoopJobEndedPrefix = "Ended Job = "
)

// progress estimates a statement's completion percentage from its log.
// Hive counts started and ended jobs against the announced total. Impala
// reports the percentage itself. Other dialects report 50.
func progress(t domain.SnippetType, logs string) int {
	switch t {
	case domain.SnippetHive:
		total := 1
		if m := hiveTotalJobsRe.FindStringSubmatch(logs); m != nil {
			total, _ = strconv.Atoi(m[1])
		}
		if total <= 0 {
			return 100
		}
		done := strings.Count(logs, "Starting Job") + strings.Count(logs, "Ended Job")
		return min(done*100/(total*2), 100)
	case domain.SnippetImpala:
		matches := impalaCompleteRe.FindAllStringSubmatch(logs, -1)
		if len(matches) == 0 {
			return 0
		}
		pct, _ := strconv.Atoi(matches[len(matches)-1][1])
		return min(pct, 100)
	default:
		return 50
	}
}

// parseHadoopJobs lists the MapReduce jobs a Hive log mentions, in start
// order.
func parseHadoopJobs(logs string) []Job {
	jobs := []Job{}
	seen := make(map[string]bool)
	for _, m := range hadoopJobStartedRe.FindAllStringSubmatch(logs, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		jobs = append(jobs, Job{
			Name:     name,
			URL:      m[2],
			Started:  true,
			Finished: strings.Contains(logs, hadoopJobEndedPrefix+name),
		})
	}
	return jobs
}
