// Package crawler holds the fetch side of the ingestion pipeline: the page
// fetcher contracts, retry with exponential backoff, the inter-request delay,
// the advisory robots.txt check, and static-to-headless promotion.
package crawler
