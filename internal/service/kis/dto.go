package kis

// Wire shapes of the inquiry outputs. Every numeric field arrives as a string.

type domesticHolding struct {
	Pdno        string `json:"pdno"`
	PrdtName    string `json:"prdt_name"`
	HldgQty     string `json:"hldg_qty"`
	OrdPsblQty  string `json:"ord_psbl_qty"`
	PchsAvgPric string `json:"pchs_avg_pric"`
	Prpr        string `json:"prpr"`
}

type domesticBalanceResponse struct {
	Output1 []domesticHolding `json:"output1"`
}

type domesticFill struct {
	OrdDt        string `json:"ord_dt"`
	Odno         string `json:"odno"`
	Pdno         string `json:"pdno"`
	SllBuyDvsnCd string `json:"sll_buy_dvsn_cd"`
	TotCcldQty   string `json:"tot_ccld_qty"`
	AvgPrvs      string `json:"avg_prvs"`
}

type domesticFillsResponse struct {
	Output1 []domesticFill `json:"output1"`
}

type overseasHolding struct {
	OvrsPdno     string `json:"ovrs_pdno"`
	OvrsItemName string `json:"ovrs_item_name"`
	OvrsCblcQty  string `json:"ovrs_cblc_qty"`
	OrdPsblQty   string `json:"ord_psbl_qty"`
	PchsAvgPric  string `json:"pchs_avg_pric"`
	NowPric2     string `json:"now_pric2"`
	OvrsExcgCd   string `json:"ovrs_excg_cd"`
}

type overseasBalanceResponse struct {
	Output1 []overseasHolding `json:"output1"`
}

type overseasFill struct {
	OrdDt        string `json:"ord_dt"`
	Odno         string `json:"odno"`
	Pdno         string `json:"pdno"`
	SllBuyDvsnCd string `json:"sll_buy_dvsn_cd"`
	FtCcldQty    string `json:"ft_ccld_qty"`
	FtCcldUnpr3  string `json:"ft_ccld_unpr3"`
	OvrsExcgCd   string `json:"ovrs_excg_cd"`
}

type overseasFillsResponse struct {
	Output []overseasFill `json:"output"`
}

type orderOutput struct {
	Odno       string `json:"ODNO"`
	RsvnOrdSeq string `json:"RSVN_ORD_SEQ"`
	OrdTmd     string `json:"ORD_TMD"`
}

type orderResponse struct {
	Output orderOutput `json:"output"`
}

type holidayDay struct {
	BassDt     string `json:"bass_dt"`
	WdayDvsnCd string `json:"wday_dvsn_cd"`
	BzdyYn     string `json:"bzdy_yn"`
	TrDayYn    string `json:"tr_day_yn"`
	OpndYn     string `json:"opnd_yn"`
	SttlDayYn  string `json:"sttl_day_yn"`
}

type holidayResponse struct {
	Output []holidayDay `json:"output"`
}
