// dephealth_name.go — имя вершины графа зависимостей для topologymetrics.
package main

import (
	"os"
	"regexp"

	"github.com/bigkaa/goartstore/docview/internal/config"
)

var (
	// <deployment>-<pod-template-hash>-<suffix>
	deploymentPodRe = regexp.MustCompile(`^(.+)-[a-z0-9]{6,10}-[a-z0-9]{5}$`)
	// <statefulset>-<ordinal>
	statefulSetPodRe = regexp.MustCompile(`^(.+)-\d+$`)
)

// dephealthName возвращает DV_DEPHEALTH_NAME, иначе имя владельца пода
// из hostname. Без hostname — "docview".
func dephealthName(cfg *config.Config) string {
	if cfg.DephealthName != "" {
		return cfg.DephealthName
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "docview"
	}
	return parseOwnerName(hostname)
}

// parseOwnerName извлекает имя Deployment или StatefulSet из имени пода.
// Остальные имена возвращаются без изменений.
func parseOwnerName(hostname string) string {
	if m := deploymentPodRe.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	if m := statefulSetPodRe.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	return hostname
}
